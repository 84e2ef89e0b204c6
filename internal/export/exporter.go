package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
)

const defaultPrefix = "statements"

// Exporter uploads CSV statements under <prefix>/<user>/<timestamp>.csv.
type Exporter struct {
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
}

// NewExporter creates an Exporter for dest, a bucket name or gs:// URI.
func NewExporter(store ObjectStore, dest string) (*Exporter, error) {
	bucket, prefix, err := ParseDestination(dest)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Exporter{store: store, bucket: bucket, prefix: prefix, now: time.Now}, nil
}

// UploadStatement renders txs and uploads them, returning the object URI.
func (e *Exporter) UploadStatement(ctx context.Context, userID string, txs []domain.Transaction) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("UploadStatement: user id is required")
	}

	var buf bytes.Buffer
	if err := WriteStatementCSV(&buf, txs); err != nil {
		return "", fmt.Errorf("UploadStatement: %w", err)
	}

	object := path.Join(e.prefix, userID, e.now().UTC().Format("20060102T150405Z")+".csv")
	if err := e.store.Write(ctx, e.bucket, object, "text/csv", &buf); err != nil {
		return "", fmt.Errorf("UploadStatement: %w", err)
	}
	return ObjectURI(e.bucket, object), nil
}
