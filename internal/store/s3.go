package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/lattiq/postcard/internal/core"
)

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 is a Store over objects in an S3 bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates a Store over bucket, prefixing every key with prefix.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewS3FromRegion loads the default AWS configuration for region and creates a Store.
func NewS3FromRegion(ctx context.Context, region, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, core.NewValidationError("views.store.bucket", "bucket is required for the s3 store")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return path.Clean(name)
	}
	return path.Join(s.prefix, name)
}

// Location returns the s3:// URL for name.
func (s *S3) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

// Exists issues a HeadObject request for name.
func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", s.Location(name), err)
	}
	return true, nil
}

// ReadFile downloads name.
func (s *S3) ReadFile(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, core.NewNotFoundError("open", s.Location(name))
		}
		return nil, fmt.Errorf("s3 get %s: %w", s.Location(name), err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", s.Location(name), err)
	}
	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
