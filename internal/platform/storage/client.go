package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

var (
	// ErrObjectTooLarge is returned by Put when the body exceeds the size limit.
	ErrObjectTooLarge = errors.New("storage: object exceeds size limit")
	// ErrObjectNotFound is returned when the referenced object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")

	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// Object describes a stored object.
type Object struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
}

// backend is the slice of Cloud Storage used by Client.
type backend interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	Size(ctx context.Context, bucket, object string) (int64, error)
}

// Client stores combination images in a single bucket.
type Client struct {
	backend       backend
	bucket        string
	publicBaseURL string
	cacheControl  string
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithPublicBaseURL sets the prefix used by PublicURL.
func WithPublicBaseURL(base string) ClientOption {
	return func(c *Client) {
		c.publicBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithCacheControl sets the Cache-Control metadata of written objects.
func WithCacheControl(value string) ClientOption {
	return func(c *Client) {
		c.cacheControl = strings.TrimSpace(value)
	}
}

// NewClient wraps a Cloud Storage client for the given bucket.
func NewClient(client *gcs.Client, bucket string, opts ...ClientOption) (*Client, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return newClient(&gcsBackend{client: client}, bucket, opts...)
}

func newClient(b backend, bucket string, opts ...ClientOption) (*Client, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	c := &Client{
		backend:      b,
		bucket:       bucket,
		cacheControl: "public, max-age=31536000, immutable",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Put streams body into object. When maxBytes is positive and the body is larger, the write is
// abandoned and ErrObjectTooLarge returned; no object is created.
func (c *Client) Put(ctx context.Context, object, contentType string, body io.Reader, maxBytes int64) (Object, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return Object{}, errInvalidObject
	}
	if body == nil {
		return Object{}, errors.New("storage: body is required")
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := c.backend.NewWriter(writeCtx, c.bucket, object, contentType)
	if gw, ok := w.(*gcs.Writer); ok && c.cacheControl != "" {
		gw.CacheControl = c.cacheControl
	}

	reader := body
	if maxBytes > 0 {
		reader = io.LimitReader(body, maxBytes+1)
	}
	written, err := io.Copy(w, reader)
	if err == nil && maxBytes > 0 && written > maxBytes {
		err = ErrObjectTooLarge
	}
	if err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = w.Close()
		if errors.Is(err, ErrObjectTooLarge) {
			return Object{}, err
		}
		return Object{}, fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return Object{Bucket: c.bucket, Name: object, ContentType: contentType, Size: written}, nil
}

// Exists reports whether object is present in the bucket.
func (c *Client) Exists(ctx context.Context, object string) (bool, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return false, errInvalidObject
	}
	if _, err := c.backend.Size(ctx, c.bucket, object); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", object, err)
	}
	return true, nil
}

// PublicURL returns the public URL of object, or "" when no public base URL is configured.
func (c *Client) PublicURL(object string) string {
	if c.publicBaseURL == "" || object == "" {
		return ""
	}
	return c.publicBaseURL + "/" + strings.TrimLeft(object, "/")
}

type gcsBackend struct {
	client *gcs.Client
}

func (b *gcsBackend) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := b.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b *gcsBackend) Size(ctx context.Context, bucket, object string) (int64, error) {
	attrs, err := b.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return 0, ErrObjectNotFound
		}
		return 0, err
	}
	return attrs.Size, nil
}
