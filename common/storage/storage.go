package storage

import (
	"context"
	"io"
)

// StorageService defines the interface for storage operations. Object names
// are relative to the configured prefix.
type StorageService interface {
	// Upload uploads content and returns the object URL
	Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error)

	// UploadFile uploads the file at path
	UploadFile(ctx context.Context, objectName, path, contentType string) (string, error)

	// Download downloads an object
	Download(ctx context.Context, objectName string) ([]byte, error)

	// Delete deletes an object
	Delete(ctx context.Context, objectName string) error

	// StreamUpload uploads from a reader
	StreamUpload(ctx context.Context, objectName string, reader io.Reader, contentType string) (string, error)
}
