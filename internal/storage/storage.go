package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"teslabox/internal/config"
	"teslabox/internal/logging"
	"teslabox/internal/services"
)

// ContentTypeMP4 is the content type of every uploaded video.
const ContentTypeMP4 = "video/mp4"

// ObjectStore is the remote persistence surface used by the pipelines.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Client is an ObjectStore backed by minio-go. A Client without a bucket
// handle is disabled.
type Client struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New builds a Client from cfg.Storage.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	logger = logging.NewComponentLogger(logger, "storage")
	if cfg == nil || !cfg.StorageConfigured() {
		logging.WarnWithContext(logger, "object store disabled", "storage_disabled",
			logging.String(logging.FieldErrorHint, "set storage access_key, secret_key, region and bucket"),
			logging.String(logging.FieldImpact, "archives and streams will not be uploaded and links stay empty"),
		)
		return &Client{logger: logger}, nil
	}

	s := cfg.Storage
	endpoint, secure, custom, err := resolveEndpoint(s.Endpoint, s.Region, s.UseSSL)
	if err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
		Secure: secure,
		Region: s.Region,
	}
	if custom {
		opts.BucketLookup = minio.BucketLookupPath
		logger.Info("using S3-compatible endpoint", logging.String("endpoint", endpoint))
	}
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "create object store client", err)
	}
	return &Client{client: client, bucket: s.Bucket, logger: logger}, nil
}

// Enabled reports whether uploads reach a real object store.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// PutObject uploads data under key.
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if !c.Enabled() {
		return nil
	}
	if contentType == "" {
		contentType = ContentTypeMP4
	}
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify("put", key, err)
	}
	c.logger.Debug("object uploaded", logging.String("key", key), logging.Int("bytes", len(data)))
	return nil
}

// SignedURL returns a presigned GET link for key valid for expiry.
func (c *Client) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", classify("sign", key, err)
	}
	return u.String(), nil
}

// EnsureBucket verifies that the configured bucket exists.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return classify("bucket", c.bucket, err)
	}
	if !exists {
		return services.Wrap(services.ErrNotFound, "storage", "bucket", fmt.Sprintf("bucket %q does not exist", c.bucket), nil)
	}
	return nil
}

// resolveEndpoint turns the configured endpoint into a minio host. An empty
// endpoint targets AWS S3 in region.
func resolveEndpoint(raw, region string, useSSL bool) (host string, secure, custom bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if region == "" {
			return "s3.amazonaws.com", true, false, nil
		}
		return "s3." + region + ".amazonaws.com", true, false, nil
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), useSSL, true, nil
	}
	u, parseErr := url.Parse(raw)
	if parseErr != nil || u.Host == "" {
		return "", false, false, services.Wrap(services.ErrConfiguration, "storage", "endpoint", fmt.Sprintf("invalid endpoint %q", raw), parseErr)
	}
	switch u.Scheme {
	case "https":
		secure = true
	case "http":
		secure = false
	default:
		return "", false, false, services.Wrap(services.ErrConfiguration, "storage", "endpoint", fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	return u.Host, secure, true, nil
}

var transientCodes = map[string]struct{}{
	"SlowDown":             {},
	"RequestTimeout":       {},
	"RequestTimeTooSkewed": {},
	"InternalError":        {},
	"ServiceUnavailable":   {},
	"Throttling":           {},
}

// classify tags object store failures that are worth retrying.
func classify(operation, key string, err error) error {
	if err == nil {
		return nil
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if _, ok := transientCodes[resp.Code]; ok || resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return services.Wrap(services.ErrTransient, "storage", operation, key, err)
		}
		return services.Wrap(services.ErrExternalTool, "storage", operation, key, err)
	}
	if services.IsTransient(err) {
		return services.Wrap(services.ErrTransient, "storage", operation, key, err)
	}
	return services.Wrap(services.ErrExternalTool, "storage", operation, key, err)
}
