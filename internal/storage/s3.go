// Package storage hands out presigned S3 URLs so clients move file bytes
// directly to and from the bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/config"
)

// ErrUnavailable wraps every failure to talk to or sign for the bucket
var ErrUnavailable = errors.New("object storage unavailable")

const defaultPresignExpires = 15 * time.Minute

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// PresignedURL is a time-limited URL for a single object
type PresignedURL struct {
	Key       string    `json:"file_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectStore issues presigned URLs
type ObjectStore interface {
	// PresignUpload allocates a fresh key under prefix and signs a PUT for it
	PresignUpload(ctx context.Context, prefix string) (*PresignedURL, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// S3Store signs requests against one bucket. Signing is local, no request
// reaches S3 until the client uses the URL.
type S3Store struct {
	presign *s3.PresignClient
	bucket  string
	expires time.Duration
	now     func() time.Time
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store builds a presign client from static credentials. A non-empty
// BaseEndpoint switches to path-style addressing for MinIO and friends.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is not configured", ErrUnavailable)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", ErrUnavailable, err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	expires := cfg.PresignExpires
	if expires <= 0 {
		expires = defaultPresignExpires
	}

	return &S3Store{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expires: expires,
		now:     time.Now,
	}, nil
}

// NewKey returns a random object key under prefix, bucketed by day
func NewKey(prefix string, now time.Time) string {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%s%d/%02d/%02d/%s", prefix, now.Year(), now.Month(), now.Day(), uuid.New())
}

func (s *S3Store) PresignUpload(ctx context.Context, prefix string) (*PresignedURL, error) {
	now := s.now()
	key := NewKey(prefix, now)

	req, err := presignPutObject(s.presign, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return nil, fmt.Errorf("%w: presign put: %w", ErrUnavailable, err)
	}

	return &PresignedURL{
		Key:       key,
		URL:       req.URL,
		ExpiresAt: now.Add(s.expires),
	}, nil
}

func (s *S3Store) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return "", fmt.Errorf("%w: presign get: %w", ErrUnavailable, err)
	}

	return req.URL, nil
}
