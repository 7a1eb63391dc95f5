package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// EnvGitToken holds an optional token for HTTPS clones.
const EnvGitToken = "JOBENTRY_GIT_TOKEN"

// gitHandler clones git+<transport>:// repositories. An optional #ref
// fragment names a branch, tag or commit to check out.
type gitHandler struct{}

func (gitHandler) cloneURL(loc Location) string {
	scheme := strings.TrimPrefix(loc.Scheme, "git+")
	if scheme == "file" {
		return "/" + loc.Key
	}
	return fmt.Sprintf("%s://%s/%s", scheme, loc.Host, loc.Key)
}

func (gitHandler) target(loc Location, destDir string) string {
	return filepath.Join(destDir, strings.TrimSuffix(baseName(loc.Key), ".git"))
}

func (h gitHandler) fetch(ctx context.Context, loc Location, target string) error {
	opts := &git.CloneOptions{
		URL:  h.cloneURL(loc),
		Auth: gitAuth(loc),
	}
	if loc.Ref == "" && loc.Scheme != SchemeGitFile {
		opts.Depth = 1
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, target, false, opts)
	if err != nil {
		_ = os.RemoveAll(target)
		return fmt.Errorf("failed to clone %s: %w", opts.URL, err)
	}

	if loc.Ref == "" {
		return nil
	}
	if err := checkoutRef(repo, loc.Ref); err != nil {
		_ = os.RemoveAll(target)
		return err
	}
	return nil
}

func checkoutRef(repo *git.Repository, ref string) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		// Non-default branches only exist as remote-tracking refs after a clone.
		hash, err = repo.ResolveRevision(plumbing.Revision("origin/" + ref))
		if err != nil {
			return fmt.Errorf("failed to resolve ref %s: %w", ref, err)
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return fmt.Errorf("failed to check out %s: %w", ref, err)
	}
	return nil
}

func gitAuth(loc Location) transport.AuthMethod {
	if loc.Scheme != SchemeGitHTTP {
		return nil
	}
	token := os.Getenv(EnvGitToken)
	if token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "oauth2",
		Password: token,
	}
}
