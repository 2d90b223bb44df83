package gcs

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const storageHost = "storage.googleapis.com"

// SignedURL returns a V4 signed PUT URL that only accepts contentType.
// Without a service account key the SDK signs through the IAM credentials API.
func (c *Client) SignedURL(bucket, object, contentType string, expires time.Duration) (string, error) {
	if c == nil || c.storage == nil {
		return "", errors.New("gcs client not initialized")
	}
	if bucket == "" {
		bucket = c.bucket
	}
	switch {
	case strings.TrimSpace(object) == "":
		return "", errors.New("object name is required")
	case strings.TrimSpace(contentType) == "":
		return "", errors.New("content type is required")
	case expires <= 0:
		return "", errors.New("expiry must be positive")
	}

	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(expires),
	}
	if c.signer != nil {
		opts.GoogleAccessID = c.signer.ClientEmail
		opts.PrivateKey = []byte(c.signer.PrivateKey)
	}
	return c.storage.Bucket(bucket).SignedURL(object, opts)
}

// ObjectExists reports whether the object is present. A missing object is (false, nil).
func (c *Client) ObjectExists(ctx context.Context, bucket, object string) (bool, error) {
	if c == nil || c.storage == nil {
		return false, errors.New("gcs client not initialized")
	}
	if bucket == "" {
		bucket = c.bucket
	}
	if object == "" {
		return false, errors.New("object name is required")
	}

	_, err := c.storage.Bucket(bucket).Object(object).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ParseObjectURL splits gs://bucket/object and
// https://storage.googleapis.com/bucket/object references. Query strings are
// ignored so a signed URL resolves to its object.
func ParseObjectURL(raw string) (bucket, object string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "gs":
		bucket, object = u.Host, path
	case u.Scheme != "https" && u.Scheme != "http":
		return "", "", false
	case host == storageHost:
		bucket, object, _ = strings.Cut(path, "/")
	case strings.HasSuffix(host, "."+storageHost):
		bucket, object = u.Host[:len(u.Host)-len(storageHost)-1], path
	default:
		return "", "", false
	}
	if bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// ObjectURL is the canonical https reference stored on a proof.
func ObjectURL(bucket, object string) string {
	return "https://" + storageHost + "/" + bucket + "/" + object
}
