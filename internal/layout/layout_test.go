package layout

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	joberrors "jobentry/internal/errors"
)

func TestPrepare_CreatesLinkAndTree(t *testing.T) {
	base := t.TempDir()
	l := New(filepath.Join(base, "ml"), filepath.Join(base, "braket"))

	if err := l.Prepare(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	target, err := os.Readlink(l.BraketRoot)
	if err != nil {
		t.Fatalf("Expected braket root to be a symlink, got: %v", err)
	}
	if target != l.MLRoot {
		t.Errorf("Expected link to %s, got %s", l.MLRoot, target)
	}

	for _, dir := range []string{l.CustomerCodeDir(), l.OriginalDir(), l.ExtractedDir(), l.AdditionalSetupDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s to exist", dir)
		}
	}

	// The tree lives in the ML root through the link.
	if _, err := os.Stat(filepath.Join(l.MLRoot, CodeDir, CustomerCodeDir, ExtractedDir)); err != nil {
		t.Errorf("Expected extracted directory under the ML root, got: %v", err)
	}
}

func TestPrepare_Idempotent(t *testing.T) {
	base := t.TempDir()
	l := New(filepath.Join(base, "ml"), filepath.Join(base, "braket"))

	for i := 0; i < 2; i++ {
		if err := l.Prepare(); err != nil {
			t.Fatalf("Expected run %d to succeed, got: %v", i+1, err)
		}
	}
}

func TestPrepare_ExistingDirectoryTolerated(t *testing.T) {
	base := t.TempDir()
	l := New(filepath.Join(base, "ml"), filepath.Join(base, "braket"))
	if err := os.MkdirAll(l.BraketRoot, 0755); err != nil {
		t.Fatalf("Failed to create braket root: %v", err)
	}

	if err := l.Prepare(); err != nil {
		t.Fatalf("Expected an existing braket root to be tolerated, got: %v", err)
	}
	if _, err := os.Stat(l.ExtractedDir()); err != nil {
		t.Errorf("Expected extracted directory, got: %v", err)
	}
}

func TestPrepare_SymlinkFailure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	// The braket root's parent is a regular file, so the link cannot be made.
	l := New(filepath.Join(base, "ml"), filepath.Join(blocker, "braket"))

	err := l.Prepare()
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	if !errors.Is(err, joberrors.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Symlink failure.\n Exception: ") {
		t.Errorf("Expected symlink failure message, got: %q", err.Error())
	}
}

func TestPrepare_SkipSymlink(t *testing.T) {
	base := t.TempDir()
	l := New(filepath.Join(base, "ml"), filepath.Join(base, "braket"))
	l.SkipSymlink = true

	if err := l.Prepare(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	info, err := os.Lstat(l.BraketRoot)
	if err != nil {
		t.Fatalf("Expected braket root to exist, got: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("Expected a plain directory when the symlink is skipped")
	}
}

func TestPaths(t *testing.T) {
	l := New("/opt/ml", "/opt/braket")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"original", l.OriginalDir(), "/opt/braket/code/customer_code/original"},
		{"extracted", l.ExtractedDir(), "/opt/braket/code/customer_code/extracted"},
		{"additional setup", l.AdditionalSetupDir(), "/opt/braket/additional_setup"},
		{"output", l.OutputDir(), "/opt/ml/output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.got)
			}
		})
	}
}
