package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/config"
)

func testStorageConfig() config.StorageConfig {
	return config.StorageConfig{
		Bucket:         "docstamp",
		Region:         "us-east-1",
		BaseEndpoint:   "http://127.0.0.1:9000",
		AccessKey:      "minioadmin",
		SecretKey:      "minioadmin",
		PresignExpires: 5 * time.Minute,
	}
}

func TestNewKey(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	key := NewKey("documents/abc", now)
	assert.True(t, strings.HasPrefix(key, "documents/abc/2026/03/07/"), key)
	assert.NotEqual(t, key, NewKey("documents/abc/", now))
}

func TestS3Store_PresignUploadAndDownload(t *testing.T) {
	store, err := NewS3Store(context.Background(), testStorageConfig())
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	up, err := store.PresignUpload(context.Background(), "logos/acc-1/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "logos/acc-1/"))
	assert.Equal(t, fixed.Add(5*time.Minute), up.ExpiresAt)

	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/docstamp/"+up.Key, u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))

	down, err := store.PresignDownload(context.Background(), up.Key)
	require.NoError(t, err)
	assert.Contains(t, down, up.Key)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	cfg := testStorageConfig()
	cfg.Bucket = ""

	_, err := NewS3Store(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewS3Store_LoadConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	boom := errors.New("boom")
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, boom
	}

	_, err := NewS3Store(context.Background(), testStorageConfig())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestS3Store_PresignErrorsAreUnavailable(t *testing.T) {
	store, err := NewS3Store(context.Background(), testStorageConfig())
	require.NoError(t, err)

	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		presignPutObject = origPut
		presignGetObject = origGet
	})

	boom := errors.New("signer down")
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, boom
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, boom
	}

	_, err = store.PresignUpload(context.Background(), "documents/x/")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = store.PresignDownload(context.Background(), "documents/x/file")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, boom)
}
