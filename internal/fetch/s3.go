package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cinemetrics/datasetd/internal/dataset"
	"github.com/cinemetrics/datasetd/internal/logctx"
)

// S3Fetcher downloads datasets from public S3 buckets (s3://bucket/key)
// using anonymous credentials. Research corpora are commonly mirrored on
// public buckets, so no signing is needed.
type S3Fetcher struct {
	client *s3.Client
}

func NewS3Fetcher(ctx context.Context, region string) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	bucket, key, err := splitS3Source(source)
	if err != nil {
		return nil, 0, &dataset.NotFoundError{Source: source}
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		logger.Debug("s3 get object failed", "bucket", bucket, "key", key, "err", err)

		var noSuchKey *types.NoSuchKey

		var noSuchBucket *types.NoSuchBucket

		if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
			return nil, 0, &dataset.NotFoundError{Source: source, StatusCode: 404}
		}

		return nil, 0, &dataset.UnreachableError{Source: source, Err: err}
	}

	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func splitS3Source(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", err
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("source %q is not a valid s3://bucket/key locator", source)
	}

	return bucket, key, nil
}
