package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Archiver persists original customer artwork files to the archive bucket so
// the workshop retains untouched sources independent of the asset host.
type Archiver struct {
	client *gcs.Client
	bucket string
}

// NewArchiver constructs an Archiver writing into the provided bucket.
func NewArchiver(client *gcs.Client, bucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// ArchiveArtwork writes a single artwork file for an order item and returns
// the gs:// reference of the stored object.
func (a *Archiver) ArchiveArtwork(ctx context.Context, orderID, orderItemID, fileName, contentType string, data []byte) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("storage archiver: client is not initialised")
	}
	if len(data) == 0 {
		return "", errors.New("storage archiver: file data is required")
	}

	objectPath, err := BuildObjectPath(PurposeArtworkOriginal, PathParams{
		OrderID:     orderID,
		OrderItemID: orderItemID,
		FileName:    fileName,
	})
	if err != nil {
		return "", err
	}

	writer := a.client.Bucket(a.bucket).Object(objectPath).NewWriter(ctx)
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage archiver: write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage archiver: finalize object: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectPath), nil
}

// ParseObjectRef splits a gs://bucket/object reference into its components.
func ParseObjectRef(ref string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(ref), "gs://")
	if trimmed == ref || trimmed == "" {
		return "", "", fmt.Errorf("storage: invalid object reference %q", ref)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("storage: invalid object reference %q", ref)
	}
	return parts[0], parts[1], nil
}
