package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"typed not found", &types.NotFound{}, true},
		{"typed no such key", fmt.Errorf("get: %w", &types.NoSuchKey{}), true},
		{"bare code", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

func TestS3Backend_Configuration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("InvalidSSE", func(t *testing.T) {
		_, err := New(Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "rot13"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SSE algorithm")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend, err := New(Config{Bucket: "test-bucket", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.Equal(t, time.Hour, backend.presignDuration)
	})

	t.Run("SSE", func(t *testing.T) {
		backend, err := New(Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s", EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key"})
		require.NoError(t, err)
		input := &s3.PutObjectInput{}
		backend.applySSE(input)
		assert.Equal(t, "aws:kms", string(input.ServerSideEncryption))
		assert.Equal(t, "key", *input.SSEKMSKeyId)
	})

	t.Run("PresignedDownloadURL", func(t *testing.T) {
		backend, err := New(Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "http://localhost:9000", UsePathStyle: true})
		require.NoError(t, err)
		u, err := backend.GetDownloadURL(context.Background(), "A/repo/att", "a.txt")
		require.NoError(t, err)
		assert.Contains(t, u, "localhost:9000/b/A/repo/att")
		assert.Contains(t, u, "X-Amz-Signature")
	})
}

// TestS3Backend_Integration runs against MinIO or S3 when S3_TEST_ENDPOINT is set.
func TestS3Backend_Integration(t *testing.T) {
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test: S3_TEST_ENDPOINT not set")
	}
	backend, err := New(Config{
		Bucket:                 "lifecycle-test",
		Endpoint:               endpoint,
		AccessKeyID:            os.Getenv("S3_TEST_ACCESS_KEY"),
		SecretAccessKey:        os.Getenv("S3_TEST_SECRET_KEY"),
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)
	ctx := context.Background()
	key := "A/test/" + uuid.NewString()

	require.NoError(t, backend.UploadWithParams(ctx, strings.NewReader("hello"), lifecycle.UploadParams{ObjectKey: key, MimeType: "text/plain"}))
	meta, err := backend.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)

	reader, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.Download(ctx, key)
	assert.ErrorIs(t, err, lifecycle.ErrBlobNotFound)
}
