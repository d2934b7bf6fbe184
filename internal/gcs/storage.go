// Package gcs reads statement PDFs from and writes exports to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/statement-converter/internal/logger"
)

const uriScheme = "gs://"

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// ErrInvalidURI is returned for strings that are not gs://bucket/object URIs.
var ErrInvalidURI = errors.New("invalid GCS URI")

// Object is a downloaded object.
type Object struct {
	Name    string
	Data    []byte
	Updated time.Time
}

// Storage provides the cloud storage operations used by the converter.
// This interface enables mocking in tests.
type Storage interface {
	// Fetch downloads the object behind a gs:// URI.
	Fetch(ctx context.Context, uri string) (*Object, error)

	// Upload writes data to bucket/name and returns its gs:// URI.
	Upload(ctx context.Context, bucket, name, contentType string, data []byte) (string, error)
}

// Client is the Cloud Storage implementation of Storage. It assumes
// Application Default Credentials are configured.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client with a shared storage connection.
func NewClient(ctx context.Context) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases the storage connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Fetch downloads the object at uri together with its last modification time.
func (c *Client) Fetch(ctx context.Context, uri string) (*Object, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("gcs_uri", uri).Int("bytes", len(data)).Msg("Fetched object")

	return &Object{
		Name:    path.Base(object),
		Data:    data,
		Updated: rc.Attrs.LastModified,
	}, nil
}

// Upload writes data to bucket/name.
func (c *Client) Upload(ctx context.Context, bucket, name, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copying to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalizing upload: %w", err)
	}

	uri := ObjectURI(bucket, name)
	log := logger.FromContext(ctx)
	log.Info().Str("gcs_uri", uri).Int("bytes", len(data)).Msg("Uploaded object")
	return uri, nil
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, uriScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a gs:// URI,
// e.g. "gs://bucket/folder/file.pdf" gives "file.pdf".
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, uriScheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ObjectURI builds the gs:// URI of bucket/name.
func ObjectURI(bucket, name string) string {
	return uriScheme + bucket + "/" + strings.TrimPrefix(name, "/")
}

// ObjectName joins an export prefix and a file name into an object name.
func ObjectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

var _ Storage = (*Client)(nil)
