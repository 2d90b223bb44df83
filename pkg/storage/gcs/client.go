// Package gcs stores and checks payment proof objects in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/gcp"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

const defaultRequestTimeout = 5 * time.Second

// Pinger is the readiness surface used by /health/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client is bound to the proof bucket. Calls are single attempt; callers
// bound them with their own deadline.
type Client struct {
	storage *storage.Client
	bucket  string
	signer  *gcp.ServiceAccount
	timeout time.Duration
}

// NewClient connects to the proof bucket and checks it is listable.
// extra options are appended after the configured credentials.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcpCfg config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	signer, err := gcp.LoadServiceAccount(gcpCfg)
	if err != nil {
		return nil, err
	}

	opts := append(gcp.ClientOptions(gcpCfg), extra...)
	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	sc.SetRetry(storage.WithPolicy(storage.RetryNever))

	c := &Client{storage: sc, bucket: bucket, signer: signer, timeout: cfg.RequestTimeout}
	if c.timeout <= 0 {
		c.timeout = defaultRequestTimeout
	}
	if err := c.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("proof bucket check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bucket":      bucket,
			"can_sign":    signer != nil,
			"proofPrefix": cfg.ProofPrefix,
		}), "proof storage connected")
	}
	return c, nil
}

// DefaultBucket is the proof bucket name.
func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	if c == nil || c.storage == nil {
		return nil
	}
	return c.storage.Close()
}

// Ping lists at most one object, which needs the same storage.objects
// permissions the proof checks rely on.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	it := c.storage.Bucket(c.bucket).Objects(ctx, &storage.Query{Projection: storage.ProjectionNoACL})
	it.PageInfo().MaxSize = 1
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("list %s: %w", c.bucket, err)
	}
	return nil
}
