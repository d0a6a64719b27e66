// Package storage persists report photos and resolution evidence in an
// S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"crowdcare/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// BaseURL prefixes returned object URLs; when empty, a URL is built
	// from the endpoint.
	BaseURL string
}

type ObjectStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func New(cfg Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// SaveImage stores a report photo under a date-partitioned key and returns
// its public URL.
func (s *ObjectStore) SaveImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("reports/%s/%s%s", time.Now().UTC().Format("2006/01/02"), util.NewID(""), ext)
	return s.put(ctx, key, contentType, data)
}

// SaveEvidence stores a resolution evidence photo under a deterministic
// per-report key so re-uploads supersede earlier evidence.
func (s *ObjectStore) SaveEvidence(ctx context.Context, reportID, adminID, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("evidence/%s/%s.jpg", reportID, adminID)
	return s.put(ctx, key, contentType, data)
}

func (s *ObjectStore) put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Ping verifies the object store is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
