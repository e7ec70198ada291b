package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bookgate/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// GetObjectAPI is the slice of the S3 client the loader needs
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads book files from a bucket, optionally under a key prefix
type S3Loader struct {
	client GetObjectAPI
	bucket string
	prefix string
}

// NewS3Loader builds an S3 client from the default AWS credential chain
func NewS3Loader(ctx context.Context, cfg config.S3StorageConfig) (*S3Loader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(cfg.Region))
	}
	awsConfig, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3LoaderWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3LoaderWithClient wraps an existing client
func NewS3LoaderWithClient(client GetObjectAPI, bucket, prefix string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket, prefix: prefix}
}

func (l *S3Loader) Kind() string { return "s3" }

func (l *S3Loader) key(path string) string {
	key := strings.TrimLeft(path, "/")
	if l.prefix == "" {
		return key
	}
	return strings.TrimSuffix(l.prefix, "/") + "/" + key
}

// Load fetches the object for path
func (l *S3Loader) Load(ctx context.Context, path string) ([]byte, error) {
	key := l.key(path)
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, notFound(path, err)
		}
		return nil, storageFailure(path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storageFailure(path, fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
