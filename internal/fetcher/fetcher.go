package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	joberrors "jobentry/internal/errors"
)

// Policy decides what happens when the download target already exists.
type Policy string

const (
	// PolicySkipExisting keeps an existing local copy.
	PolicySkipExisting Policy = "skip-existing"
	// PolicyAlways downloads again and replaces the local copy.
	PolicyAlways Policy = "always"
)

// DefaultPolicy matches how the container has always behaved on restart.
const DefaultPolicy = PolicySkipExisting

// Supported URI schemes.
const (
	SchemeS3      = "s3"
	SchemeFile    = "file"
	SchemeGitHTTP = "git+https"
	SchemeGitSSH  = "git+ssh"
	SchemeGitFile = "git+file"
)

var (
	errUnsupportedScheme = errors.New("unsupported URI scheme")
	errEmptyKey          = errors.New("URI has no object key")
)

// Fetcher makes a remote artifact available locally and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, uri, destDir string) (string, error)
}

// Location is a parsed artifact URI. For s3 the host is the bucket and Key
// is the path without its leading slash.
type Location struct {
	Scheme string
	Host   string
	Key    string
	Ref    string
	Raw    string
}

// ParseURI splits an artifact URI into its parts. S3 keys are taken verbatim:
// '#' belongs to the key and escapes are not decoded. Only git URIs carry a
// "#ref".
func ParseURI(raw string) (Location, error) {
	trimmed := strings.TrimSpace(raw)
	if scheme, rest, ok := strings.Cut(trimmed, "://"); ok && strings.EqualFold(scheme, SchemeS3) {
		return parseS3(rest, raw)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Location{}, fmt.Errorf("invalid URI %q: %w", raw, err)
	}
	loc := Location{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Host,
		Key:    strings.TrimLeft(u.Path, "/"),
		Raw:    raw,
	}
	if strings.HasPrefix(loc.Scheme, "git+") {
		loc.Ref = u.Fragment
	} else if u.Fragment != "" {
		loc.Key += "#" + u.Fragment
	}
	if loc.Key == "" {
		return Location{}, fmt.Errorf("%w: %s", errEmptyKey, raw)
	}
	return loc, nil
}

// parseS3 splits "bucket/key[?query]". The query is dropped like any URL
// query; everything else is passed to the object store as written.
func parseS3(rest, raw string) (Location, error) {
	bucket, key, _ := strings.Cut(rest, "/")
	if i := strings.IndexByte(bucket, '?'); i >= 0 {
		bucket, key = bucket[:i], ""
	}
	key, _, _ = strings.Cut(key, "?")
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return Location{}, fmt.Errorf("%w: %s", errEmptyKey, raw)
	}
	return Location{Scheme: SchemeS3, Host: bucket, Key: key, Raw: raw}, nil
}

// Router dispatches on the URI scheme and applies the fetch policy.
type Router struct {
	policy   Policy
	handlers map[string]handler
	logger   *slog.Logger
}

type handler interface {
	target(loc Location, destDir string) string
	fetch(ctx context.Context, loc Location, target string) error
}

// Option customises a Router.
type Option func(*Router)

// WithPolicy overrides the default fetch policy.
func WithPolicy(policy Policy) Option {
	return func(r *Router) {
		if policy != "" {
			r.policy = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithS3 enables s3:// URIs through the given object client.
func WithS3(getter ObjectGetter) Option {
	return func(r *Router) { r.handlers[SchemeS3] = &s3Handler{client: getter} }
}

// NewRouter returns a Router that handles local files and git repositories.
// S3 support is added with WithS3.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		policy: DefaultPolicy,
		handlers: map[string]handler{
			SchemeFile: localHandler{},
		},
		logger: slog.Default(),
	}
	git := &gitHandler{}
	for _, scheme := range []string{SchemeGitHTTP, SchemeGitSSH, SchemeGitFile} {
		r.handlers[scheme] = git
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch downloads uri into destDir. Every failure is a fetch error; nothing is
// retried.
func (r *Router) Fetch(ctx context.Context, uri, destDir string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", joberrors.NewFetchError(err)
	}

	h, ok := r.handlers[loc.Scheme]
	if !ok {
		return "", joberrors.NewFetchError(fmt.Errorf("%w: %q", errUnsupportedScheme, loc.Scheme))
	}

	target := h.target(loc, destDir)
	if _, err := os.Stat(target); err == nil {
		if r.policy == PolicySkipExisting {
			r.logger.Info("Customer code already present, skipping download", "path", target)
			return target, nil
		}
		if err := os.RemoveAll(target); err != nil {
			return "", joberrors.NewFetchError(err)
		}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", joberrors.NewFetchError(err)
	}

	r.logger.Info("Downloading customer code", "uri", uri, "destination", target)
	if err := h.fetch(ctx, loc, target); err != nil {
		return "", joberrors.NewFetchError(err)
	}
	return target, nil
}

func baseName(key string) string {
	return path.Base(strings.TrimRight(key, "/"))
}
