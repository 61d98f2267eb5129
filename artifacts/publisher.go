// Package artifacts publishes generated dbt docs to S3-compatible object
// storage so they can be served as a static site.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/segmentio/ksuid"

	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
)

// docsObjects are the artifacts dbt docs generate leaves under target/,
// with the content types they are served with. index.html is the site
// entry point and must be present.
var docsObjects = []struct {
	name        string
	contentType string
	required    bool
}{
	{name: "index.html", contentType: "text/html", required: true},
	{name: "manifest.json", contentType: "application/json"},
	{name: "catalog.json", contentType: "application/json"},
}

// Config configures the object storage endpoint and bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every uploaded object key.
	Prefix string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}

	return nil
}

// Publisher uploads docs artifacts.
type Publisher struct {
	client *minio.Client
	cfg    Config
	lggr   logger.Logger
}

// NewPublisher validates the config and builds an object storage client.
func NewPublisher(cfg Config, lggr logger.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("artifacts config: %w", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}

	return &Publisher{client: client, cfg: cfg, lggr: lggr.Named("artifacts")}, nil
}

// PublishDocs uploads the docs artifacts found in targetDir under a fresh
// run prefix and returns that prefix. Optional artifacts that are missing
// locally are skipped.
func (p *Publisher) PublishDocs(ctx context.Context, targetDir string) (string, error) {
	prefix := path.Join(p.cfg.Prefix, ksuid.New().String())

	for _, obj := range docsObjects {
		local := filepath.Join(targetDir, obj.name)
		info, err := os.Stat(local)
		if errors.Is(err, os.ErrNotExist) {
			if obj.required {
				return "", fmt.Errorf("docs artifact %s not found in %s", obj.name, targetDir)
			}
			p.lggr.Debugw("Skipping missing docs artifact", "name", obj.name)
			continue
		}
		if err != nil {
			return "", err
		}

		f, err := os.Open(local)
		if err != nil {
			return "", err
		}

		key := path.Join(prefix, obj.name)
		_, err = p.client.PutObject(ctx, p.cfg.Bucket, key, f, info.Size(),
			minio.PutObjectOptions{ContentType: obj.contentType})
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("uploading %s: %w", key, err)
		}
		p.lggr.Infow("Uploaded docs artifact", "bucket", p.cfg.Bucket, "key", key)
	}

	return prefix, nil
}
