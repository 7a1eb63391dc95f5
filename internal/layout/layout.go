package layout

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	joberrors "jobentry/internal/errors"
)

// Directory names under the braket root.
const (
	CodeDir            = "code"
	CustomerCodeDir    = "customer_code"
	OriginalDir        = "original"
	ExtractedDir       = "extracted"
	AdditionalSetupDir = "additional_setup"
	OutputDir          = "output"
)

// Layout is the container filesystem the job runs in. The ML root is the
// path the backend mounts; the braket root is a symlink to it.
type Layout struct {
	MLRoot     string
	BraketRoot string
	// SkipSymlink leaves the braket root alone, for hosts where it is
	// already a real directory.
	SkipSymlink bool
}

// New returns a Layout for the two roots.
func New(mlRoot, braketRoot string) *Layout {
	return &Layout{MLRoot: mlRoot, BraketRoot: braketRoot}
}

func (l *Layout) CustomerCodeDir() string {
	return filepath.Join(l.BraketRoot, CodeDir, CustomerCodeDir)
}

// OriginalDir receives the fetched artifact before staging.
func (l *Layout) OriginalDir() string {
	return filepath.Join(l.CustomerCodeDir(), OriginalDir)
}

// ExtractedDir is where the customer code runs from.
func (l *Layout) ExtractedDir() string {
	return filepath.Join(l.CustomerCodeDir(), ExtractedDir)
}

func (l *Layout) AdditionalSetupDir() string {
	return filepath.Join(l.BraketRoot, AdditionalSetupDir)
}

// OutputDir holds the failure artifact and the run state.
func (l *Layout) OutputDir() string {
	return filepath.Join(l.MLRoot, OutputDir)
}

// ControlDir holds files exchanged with a callable's bootstrap.
func (l *Layout) ControlDir() string {
	return filepath.Join(l.CustomerCodeDir(), "control")
}

// Prepare links the braket root to the ML root and creates the code tree.
// It can be called any number of times.
func (l *Layout) Prepare() error {
	if !l.SkipSymlink {
		if err := l.link(); err != nil {
			return joberrors.NewConfigError("Symlink failure.", err)
		}
	}

	for _, dir := range []string{l.CustomerCodeDir(), l.OriginalDir(), l.ExtractedDir(), l.AdditionalSetupDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return joberrors.NewConfigError(fmt.Sprintf("Unable to create directory %s.", dir), err)
		}
	}

	slog.Debug("Container layout prepared", "ml_root", l.MLRoot, "braket_root", l.BraketRoot)
	return nil
}

func (l *Layout) link() error {
	if err := os.MkdirAll(l.MLRoot, 0755); err != nil {
		return err
	}
	if parent := filepath.Dir(l.BraketRoot); parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return err
		}
	}
	if err := os.Symlink(l.MLRoot, l.BraketRoot); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}
