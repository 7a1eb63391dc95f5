package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	joberrors "jobentry/internal/errors"
)

// Compression types that trigger unpacking. Anything else is copied as is.
const (
	CompressionGzip = "gzip"
	CompressionZip  = "zip"
)

// IsArchive reports whether the compression type asks for unpacking. The
// comparison ignores case and surrounding whitespace.
func IsArchive(compressionType string) bool {
	switch strings.ToLower(strings.TrimSpace(compressionType)) {
	case CompressionGzip, CompressionZip:
		return true
	default:
		return false
	}
}

// Stager populates the extraction directory the customer code runs from.
type Stager struct {
	extractDir string
	logger     *slog.Logger
}

// New creates a Stager for extractDir. A nil logger uses slog.Default.
func New(extractDir string, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{extractDir: extractDir, logger: logger}
}

// Dir is the extraction directory. It becomes the child's working directory
// and module search path.
func (s *Stager) Dir() string {
	return s.extractDir
}

// Stage unpacks or copies localPath into the extraction directory. Staging the
// same plain file twice leaves the directory in the same state.
func (s *Stager) Stage(localPath, compressionType string) error {
	if err := os.MkdirAll(s.extractDir, 0755); err != nil {
		return joberrors.NewStagingError(localPath, compressionType, err)
	}

	if IsArchive(compressionType) {
		s.logger.Info("Unpacking customer code", "archive", localPath, "compression", compressionType)
		if err := Unpack(localPath, s.extractDir); err != nil {
			return joberrors.NewStagingError(localPath, compressionType, err)
		}
		return nil
	}

	s.logger.Info("Copying customer code", "source", localPath)
	if err := s.copyInto(localPath); err != nil {
		return joberrors.NewCopyError(localPath, err)
	}
	return nil
}

// copyInto copies a file next to other staged code, or the contents of a
// directory (a cloned repository) directly into the extraction directory.
func (s *Stager) copyInto(localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDirectory(localPath, s.extractDir)
	}
	return CopyPath(localPath, s.extractDir)
}

// CopyPath copies a file or a directory tree into dstDir, keeping its base
// name. The source is never moved.
func CopyPath(src, dstDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	target := filepath.Join(dstDir, filepath.Base(src))
	if info.IsDir() {
		return copyDirectory(src, target)
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return err
	}
	return copyFile(src, target)
}

// copyDirectory recursively copies a directory from src to dst.
func copyDirectory(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, relPath)

		switch {
		case d.IsDir():
			if d.Name() == ".git" && path != src {
				return filepath.SkipDir
			}
			return os.MkdirAll(destPath, 0755)
		case d.Type()&os.ModeSymlink != 0:
			// Links may point outside the tree; the code never needs them.
			return nil
		default:
			return copyFile(path, destPath)
		}
	})
}

// copyFile copies a single file from src to dst, replacing dst and keeping the
// source permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	return writeFile(dst, srcFile, srcInfo.Mode().Perm())
}
