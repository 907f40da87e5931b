// Package storage defines the object store contract consumed by the image
// lifecycle and its S3 implementation.
package storage

import (
	"context"
	"time"
)

// BucketPolicy is the upload policy advertised by the bucket. It is read
// once at startup and treated as immutable configuration afterwards.
type BucketPolicy struct {
	MaxFileSizeBytes int64
	AllowedMimeTypes []string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// SignedURL is one entry of a batched signing call. Err is carried per item
// so a single failed path does not fail the whole batch.
type SignedURL struct {
	Key string
	URL string
	Err error
}

type ObjectStore interface {
	BucketPolicy(ctx context.Context) (BucketPolicy, error)
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignDownloadBatch(ctx context.Context, keys []string, ttl time.Duration) []SignedURL
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, keys []string) error
}
