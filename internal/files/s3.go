package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps blobs in an S3 bucket under a key prefix.
type S3Storage struct {
	client   S3API
	bucket   string
	prefix   string
	endpoint string
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// A non-empty endpoint targets an S3-compatible service with path-style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Storage wraps an S3 client.
func NewS3Storage(client S3API, bucket, prefix, endpoint string) *S3Storage {
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

func (s *S3Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads r. Non-seekable readers are spooled to a temporary file first
// so the request can be signed with a known length.
func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, seekable := r.(io.ReadSeeker); !seekable {
		tmp, err := os.CreateTemp("", "s3-upload-*")
		if err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		n, err := io.Copy(tmp, r)
		if err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		r, size = tmp, n
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   r,
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) URL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, s.objectKey(key))
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, s.objectKey(key))
}
