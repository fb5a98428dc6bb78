// Package publish uploads packaged executables to an S3-compatible registry.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vk/tsforge/internal/builderr"
	"github.com/vk/tsforge/internal/config"
	"github.com/vk/tsforge/internal/ctxlog"
)

// Location is a parsed registry URL of the form s3://bucket[/prefix].
type Location struct {
	Bucket string
	Prefix string
}

// ParseRegistry parses a registry URL.
func ParseRegistry(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("invalid registry %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("invalid registry %q: scheme must be s3", raw)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("invalid registry %q: bucket is required", raw)
	}
	return Location{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Key is the object key for file published under pkg.
func (l Location) Key(pkg, file string) string {
	return path.Join(l.Prefix, pkg, filepath.Base(file))
}

// Publisher uploads files to one registry location.
type Publisher struct {
	client   *minio.Client
	loc      Location
	region   string
	initOnce sync.Once
	initErr  error
}

// New creates a publisher for registry using the given credentials.
func New(registry string, s3 config.S3Settings) (*Publisher, error) {
	loc, err := ParseRegistry(registry)
	if err != nil {
		return nil, builderr.Config("publish", err)
	}
	endpoint := strings.TrimSpace(s3.Endpoint)
	if endpoint == "" {
		return nil, builderr.Config("publish", fmt.Errorf("%s is required to publish", config.EnvS3Endpoint))
	}
	if s3.AccessKey == "" || s3.SecretKey == "" {
		return nil, builderr.Config("publish", errors.New("s3 access key and secret key are required"))
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s3.AccessKey, s3.SecretKey, ""),
		Secure: s3.UseSSL,
		Region: s3.Region,
	})
	if err != nil {
		return nil, builderr.Config("publish", fmt.Errorf("init s3 client: %w", err))
	}
	return &Publisher{client: client, loc: loc, region: s3.Region}, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	p.initOnce.Do(func() {
		exists, err := p.client.BucketExists(ctx, p.loc.Bucket)
		if err != nil {
			p.initErr = err
			return
		}
		if exists {
			return
		}
		p.initErr = p.client.MakeBucket(ctx, p.loc.Bucket, minio.MakeBucketOptions{Region: p.region})
	})
	return p.initErr
}

// Publish uploads every file under pkg and returns the object keys.
func (p *Publisher) Publish(ctx context.Context, pkg string, files []string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("component", "publish", "bucket", p.loc.Bucket)
	if err := p.ensureBucket(ctx); err != nil {
		return nil, builderr.Packaging("publish", fmt.Errorf("ensure bucket: %w", err))
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := p.loc.Key(pkg, f)
		logger.Info("Uploading file to S3", "source", f, "key", key)
		info, err := p.client.FPutObject(ctx, p.loc.Bucket, key, f, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return nil, builderr.Packaging("publish", fmt.Errorf("upload %s: %w", f, err))
		}
		logger.Debug("Successfully uploaded file", "key", key, "size", info.Size, "etag", info.ETag)
		keys = append(keys, key)
	}
	logger.Info("🚚 Published executables.", "count", len(keys))
	return keys, nil
}
