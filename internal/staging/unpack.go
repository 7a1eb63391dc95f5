package staging

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatTarGzip
	formatTar
	formatZip
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	tarMagic  = []byte("ustar")
)

// errUnsafePath is returned for entries that would land outside the
// extraction directory.
var errUnsafePath = errors.New("archive entry escapes extraction directory")

// Unpack extracts the archive into dest. The format is taken from the file
// content, so a gzip-labelled zip still unpacks.
func Unpack(archivePath, dest string) error {
	format, err := detectFormat(archivePath)
	if err != nil {
		return err
	}

	switch format {
	case formatTarGzip:
		return unpackTarGzip(archivePath, dest)
	case formatTar:
		f, err := os.Open(archivePath)
		if err != nil {
			return err
		}
		defer f.Close()
		return unpackTar(f, dest)
	case formatZip:
		return unpackZip(archivePath, dest)
	default:
		return fmt.Errorf("unknown archive format: %s", filepath.Base(archivePath))
	}
}

func detectFormat(archivePath string) (archiveFormat, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return formatUnknown, err
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return formatUnknown, err
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return formatTarGzip, nil
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmpty):
		return formatZip, nil
	case len(header) >= 262 && bytes.Equal(header[257:262], tarMagic):
		return formatTar, nil
	default:
		return formatUnknown, nil
	}
}

func unpackTarGzip(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	return unpackTar(gz, dest)
}

func unpackTar(r io.Reader, dest string) error {
	x, err := newExtractor(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.checkReal(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := x.checkReal(filepath.Dir(target)); err != nil {
				return err
			}
			if err := x.checkLink(target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			if !hdr.FileInfo().Mode().IsRegular() {
				// Devices, fifos and hard links are not customer code.
				continue
			}
			if err := x.checkReal(filepath.Dir(target)); err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

func unpackZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	x, err := newExtractor(dest)
	if err != nil {
		return err
	}

	for _, file := range zr.File {
		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := x.checkReal(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := x.checkReal(filepath.Dir(target)); err != nil {
			return err
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", file.Name, err)
		}
		mode := file.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}
		err = writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin resolves an archive entry name under dest and rejects anything
// that would escape it. It only looks at the name; links already on disk are
// checked by extractor.checkReal.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}
	target := filepath.Join(dest, name)
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// extractor keeps archive entries inside dest as it exists on disk, following
// the links earlier entries created.
type extractor struct {
	dest     string
	realDest string
}

func newExtractor(dest string) (*extractor, error) {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}
	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, err
	}
	return &extractor{dest: dest, realDest: realDest}, nil
}

// checkReal resolves the deepest existing ancestor of path and rejects it if
// it lies outside the extraction directory. Components below it do not exist
// yet, so they cannot be links.
func (x *extractor) checkReal(path string) error {
	existing := path
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errUnsafePath, path, err)
	}
	if !within(x.realDest, resolved) {
		return fmt.Errorf("%w: %s resolves to %s", errUnsafePath, path, resolved)
	}
	return nil
}

// checkLink follows linkname from the link's real parent one component at a
// time, resolving links on the way, and rejects it if any step leaves the
// extraction directory.
func (x *extractor) checkLink(target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fmt.Errorf("%w: link %s -> %s", errUnsafePath, target, linkname)
	}

	cur, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err != nil {
		// The parent is created later; checkReal has already placed it inside.
		cur = filepath.Join(x.realDest, mustRel(x.dest, filepath.Dir(target)))
	}

	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
			if info, err := os.Lstat(cur); err == nil && info.Mode()&os.ModeSymlink != 0 {
				if cur, err = filepath.EvalSymlinks(cur); err != nil {
					return fmt.Errorf("%w: link %s -> %s", errUnsafePath, target, linkname)
				}
			}
		}
		if !within(x.realDest, cur) {
			return fmt.Errorf("%w: link %s -> %s", errUnsafePath, target, linkname)
		}
	}
	return nil
}

func mustRel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "."
	}
	return rel
}

func writeFile(dst string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if info, err := os.Lstat(dst); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a link", errUnsafePath, dst)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, mode)
}
