package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioRegistry implements a content-addressed store on MinIO/S3
// compatible storage. The address is the SHA-256 hex of the payload and
// doubles as the object key, which makes writes idempotent.
type MinioRegistry struct {
	client *minio.Client
	bucket string
}

// NewMinioRegistry connects to MinIO and ensures the bucket exists.
func NewMinioRegistry(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioRegistry, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioRegistry{client: client, bucket: bucket}, nil
}

// Upload stores the payload under its SHA-256 address.
func (m *MinioRegistry) Upload(ctx context.Context, r io.Reader) (string, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	address := hex.EncodeToString(sum[:])
	_, err = m.client.PutObject(ctx, m.bucket, objectKey(address),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return address, nil
}

// Fetch streams the payload for a content address.
func (m *MinioRegistry) Fetch(ctx context.Context, address string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(address), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; surface missing keys now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}

func objectKey(address string) string {
	return "artifacts/" + address
}
