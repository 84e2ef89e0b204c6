package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectStore writes objects to a bucket.
type ObjectStore interface {
	Write(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// GCSObjectStore writes to Google Cloud Storage. It assumes Application
// Default Credentials are configured.
type GCSObjectStore struct {
	client *storage.Client
}

func NewGCSObjectStore(ctx context.Context) (*GCSObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSObjectStore{client: client}, nil
}

func (s *GCSObjectStore) Close() error {
	return s.client.Close()
}

// Write uploads r to gs://bucket/object.
func (s *GCSObjectStore) Write(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// ObjectURI formats a gs:// URI.
func ObjectURI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseDestination splits "gs://bucket/prefix" or a bare bucket name into
// bucket and object prefix.
func ParseDestination(dest string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(dest, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS destination: %q", dest)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}
