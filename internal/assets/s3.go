package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Options configures the S3 store.
type S3Options struct {
	Bucket string
	// Prefix is prepended to store-relative keys.
	Prefix   string
	Region   string
	Endpoint string
	// UsePathStyle is needed by most S3-compatible servers.
	UsePathStyle bool
}

type getObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 serves objects from a bucket. Credentials come from the default AWS
// chain (environment, shared config, instance role).
type S3 struct {
	client getObjectAPI
	bucket string
	prefix string
}

// NewS3 loads the default AWS configuration and creates a client.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newS3(client, opts.Bucket, opts.Prefix), nil
}

func newS3(client getObjectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// resolve maps a locator to a bucket and key. s3:// URLs name their own
// bucket; anything else is a key under the configured prefix.
func (s *S3) resolve(locator string) (string, string, error) {
	if strings.HasPrefix(locator, "s3://") {
		u, err := url.Parse(locator)
		if err != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: invalid s3 locator %q", ErrNotFound, locator)
		}
		key, err := cleanKey(u.Path)
		if err != nil {
			return "", "", err
		}
		return u.Host, key, nil
	}
	if strings.Contains(locator, "://") {
		return "", "", fmt.Errorf("%w: unsupported locator %q", ErrNotFound, locator)
	}
	key, err := cleanKey(locator)
	if err != nil {
		return "", "", err
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return s.bucket, key, nil
}

func (s *S3) Open(ctx context.Context, locator string) (*Object, error) {
	bucket, key, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(bucket, key, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &Object{Body: out.Body, Size: size}, nil
}

func classifyS3Error(bucket, key string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: s3://%s/%s", ErrAccessDenied, bucket, key)
		}
	}
	return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
}
