// Package gcs archives raw search pages in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config selects the bucket that receives archived pages.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	Endpoint string `mapstructure:"endpoint"`
}

// PageArchive uploads raw search pages as objects in one bucket.
type PageArchive struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewClient opens a storage client. A configured endpoint is used without credentials.
func NewClient(ctx context.Context, cfg Config) (*storage.Client, error) {
	opts := []option.ClientOption{}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// New binds client to cfg.Bucket. The archive takes ownership of client.
func New(client *storage.Client, cfg Config) (*PageArchive, error) {
	switch {
	case client == nil:
		return nil, errors.New("gcs archive: storage client is required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("gcs archive: bucket is required")
	}
	return &PageArchive{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket}, nil
}

// PutObject uploads body as objectPath and returns its gs:// URI.
func (a *PageArchive) PutObject(ctx context.Context, objectPath string, contentType string, body io.Reader) (string, error) {
	name := strings.TrimLeft(path.Clean("/"+objectPath), "/")
	if strings.TrimSpace(objectPath) == "" || name == "" {
		return "", errors.New("gcs archive: object path is required")
	}

	w := a.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	_, copyErr := io.Copy(w, body)
	closeErr := w.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %w", a.name, name, err)
	}
	return "gs://" + a.name + "/" + name, nil
}

// Close releases the storage client.
func (a *PageArchive) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
