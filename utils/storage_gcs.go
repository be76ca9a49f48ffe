package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Updated     time.Time `json:"updated"`
}

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSObjectStore is the blob store for uploaded ledgers. One client is shared by the process.
type GCSObjectStore struct {
	client *storage.Client
	bucket string
}

func NewGCSObjectStore(ctx context.Context, bucket string) (*GCSObjectStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %v", bucket, err)
	}
	return &GCSObjectStore{client: client, bucket: bucket}, nil
}

func (s *GCSObjectStore) Bucket() string {
	return s.bucket
}

func (s *GCSObjectStore) Close() error {
	return s.client.Close()
}

func (s *GCSObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %s: %w", key, err)
	}
	return nil
}

// Head returns ErrObjectNotFound when the key does not exist.
func (s *GCSObjectStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return &ObjectInfo{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, Updated: attrs.Updated}, nil
}

func (s *GCSObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, Updated: attrs.Updated})
	}
	return out, nil
}

func (s *GCSObjectStore) Copy(ctx context.Context, sourceKey, destKey string) error {
	bkt := s.client.Bucket(s.bucket)
	if _, err := bkt.Object(destKey).CopierFrom(bkt.Object(sourceKey)).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		return err
	}
	return nil
}

// SignDownload returns a signed GET URL for key in this store's bucket.
func (s *GCSObjectStore) SignDownload(ctx context.Context, key string, expires time.Duration) (*SignedDownload, error) {
	return SignDownload(ctx, s.bucket, key, expires)
}
