package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/config"
)

// Bucket tag keys carrying the upload policy.
const (
	tagMaxFileSize  = "max-file-size-bytes"
	tagAllowedMimes = "allowed-mime-types"
)

type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	fallback      BucketPolicy
	log           *zap.Logger
}

func NewS3Store(cfg config.S3Config, fallback BucketPolicy, log *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		fallback:      fallback,
		log:           log,
	}, nil
}

// BucketPolicy reads the upload limits from the bucket's tags, falling back
// to the configured defaults for any tag that is absent or unreadable.
func (s *S3Store) BucketPolicy(ctx context.Context) (BucketPolicy, error) {
	policy := s.fallback

	out, err := s.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		s.log.Warn("bucket tagging unavailable, using configured policy",
			zap.String("bucket", s.bucket),
			zap.Error(err))
		return policy, nil
	}

	for _, tag := range out.TagSet {
		switch aws.ToString(tag.Key) {
		case tagMaxFileSize:
			if size, err := strconv.ParseInt(aws.ToString(tag.Value), 10, 64); err == nil && size > 0 {
				policy.MaxFileSizeBytes = size
			}
		case tagAllowedMimes:
			if mimes := strings.Split(aws.ToString(tag.Value), ","); len(mimes) > 0 {
				for i := range mimes {
					mimes[i] = strings.TrimSpace(mimes[i])
				}
				policy.AllowedMimeTypes = mimes
			}
		}
	}

	return policy, nil
}

func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign PUT object: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign GET object: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignDownloadBatch(ctx context.Context, keys []string, ttl time.Duration) []SignedURL {
	results := make([]SignedURL, len(keys))
	for i, key := range keys {
		url, err := s.PresignDownload(ctx, key, ttl)
		if err != nil {
			s.log.Warn("failed to sign object URL",
				zap.String("key", key),
				zap.Error(err))
		}
		results[i] = SignedURL{Key: key, URL: url, Err: err}
	}
	return results
}

func (s *S3Store) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to head object: %w", err)
	}
	return ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *S3Store) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("failed to delete object %s: %s",
			aws.ToString(first.Key), aws.ToString(first.Message))
	}

	s.log.Info("objects removed from storage",
		zap.String("bucket", s.bucket),
		zap.Int("count", len(keys)))
	return nil
}
