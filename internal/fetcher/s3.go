package fetcher

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectGetter downloads one object to a local file. *minio.Client satisfies it.
type ObjectGetter interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

// S3Config selects the object store endpoint.
type S3Config struct {
	Endpoint string
	Region   string
	Insecure bool
}

// NewS3Client builds a minio client that resolves credentials the way the AWS
// SDKs do: environment, shared credentials file, then the instance role.
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	transport := newTransport()
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: transport}},
	})

	return minio.New(endpoint, &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: transport,
	})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

type s3Handler struct {
	client ObjectGetter
}

func (h *s3Handler) target(loc Location, destDir string) string {
	return filepath.Join(destDir, baseName(loc.Key))
}

func (h *s3Handler) fetch(ctx context.Context, loc Location, target string) error {
	return h.client.FGetObject(ctx, loc.Host, loc.Key, target, minio.GetObjectOptions{})
}
