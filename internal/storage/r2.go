// Package storage is the object storage gateway. Assets live in a
// Cloudflare R2 bucket reached over the S3 protocol; the rest of the
// service only ever handles opaque object keys produced here.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type R2Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type R2Store struct {
	client     *minio.Client
	bucketName string
	httpClient *http.Client
}

func NewR2Store(cfg R2Config) (*R2Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("r2 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("r2 access key and secret key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("r2 bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}

	return &R2Store{
		client:     client,
		bucketName: cfg.Bucket,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// ObjectKey builds the bucket key for a project asset. Folder is one of
// "sample", "character", "audio", "output".
func ObjectKey(userID, projectID uuid.UUID, folder, filename string) string {
	return fmt.Sprintf("users/%s/projects/%s/%s/%s", userID, projectID, folder, filename)
}

func (s *R2Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (s *R2Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *R2Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited download URL for a stored object.
func (s *R2Store) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// IngestURL copies a provider-hosted result into the bucket and returns the
// internal key. Provider output URLs expire quickly, so completed artifacts
// are always re-homed here before being exposed to clients.
func (s *R2Store) IngestURL(ctx context.Context, sourceURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download provider output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download provider output: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	_, err = s.client.PutObject(ctx, s.bucketName, key, resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store provider output: %w", err)
	}
	return key, nil
}
