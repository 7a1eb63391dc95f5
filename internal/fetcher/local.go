package fetcher

import (
	"context"
	"path/filepath"

	"jobentry/internal/staging"
)

// localHandler copies file:// artifacts, which is how local mode feeds code in
// without an object store.
type localHandler struct{}

func (localHandler) source(loc Location) string {
	// file://relative/path puts the first segment in the host.
	if loc.Host != "" && loc.Host != "localhost" {
		return filepath.Join(loc.Host, filepath.FromSlash(loc.Key))
	}
	return string(filepath.Separator) + filepath.FromSlash(loc.Key)
}

func (h localHandler) target(loc Location, destDir string) string {
	return filepath.Join(destDir, filepath.Base(h.source(loc)))
}

func (h localHandler) fetch(ctx context.Context, loc Location, target string) error {
	return staging.CopyPath(h.source(loc), filepath.Dir(target))
}
