package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GCSStorage implements the StorageService interface for Google Cloud Storage
type GCSStorage struct {
	client *storage.Client
	config config.GCSConfig
}

// NewGCSStorage creates a new GCS storage service. Without a credentials
// file the application default credentials are used.
func NewGCSStorage(ctx context.Context, cfg config.GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	log.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Msg("GCS storage ready")
	return &GCSStorage{
		config: cfg,
		client: storageClient,
	}, nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}

// Ping reads the bucket attributes to check it is reachable with the
// configured credentials.
func (g *GCSStorage) Ping(ctx context.Context) error {
	if _, err := g.client.Bucket(g.config.Bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("reading bucket %s: %w", g.config.Bucket, err)
	}
	return nil
}

// ObjectPath joins the configured prefix and objectName.
func (g *GCSStorage) ObjectPath(objectName string) string {
	return ObjectPath(g.config.Prefix, objectName)
}

// ObjectPath joins prefix and objectName with forward slashes.
func ObjectPath(prefix, objectName string) string {
	if prefix == "" {
		return path.Clean(objectName)
	}
	return path.Join(prefix, objectName)
}

func (g *GCSStorage) objectURL(object string) string {
	return fmt.Sprintf("gs://%s/%s", g.config.Bucket, object)
}

// Upload uploads content to GCS and returns the object URL
func (g *GCSStorage) Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	return g.StreamUpload(ctx, objectName, bytes.NewReader(content), contentType)
}

// UploadFile streams the file at filePath to GCS
func (g *GCSStorage) UploadFile(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	return g.StreamUpload(ctx, objectName, f, contentType)
}

// Download downloads an object from GCS
func (g *GCSStorage) Download(ctx context.Context, objectName string) ([]byte, error) {
	object := g.ObjectPath(objectName)
	rc, err := g.client.Bucket(g.config.Bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader for object %s in bucket %s: %w", object, g.config.Bucket, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read data for object %s in bucket %s: %w", object, g.config.Bucket, err)
	}
	return data, nil
}

// Delete deletes an object from GCS
func (g *GCSStorage) Delete(ctx context.Context, objectName string) error {
	object := g.ObjectPath(objectName)
	if err := g.client.Bucket(g.config.Bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", object, g.config.Bucket, err)
	}
	return nil
}

// StreamUpload uploads from a reader to GCS and returns the object URL.
func (g *GCSStorage) StreamUpload(ctx context.Context, objectName string, reader io.Reader, contentType string) (string, error) {
	object := g.ObjectPath(objectName)
	wc := g.client.Bucket(g.config.Bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, reader); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	return g.objectURL(object), nil
}
