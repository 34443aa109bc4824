package source

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

// S3Config configures the S3 object source.
type S3Config struct {
	// Endpoint overrides the AWS endpoint for S3-compatible services
	// (MinIO). Empty uses the SDK default resolution.
	Endpoint string

	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle is required by most S3-compatible services.
	ForcePathStyle bool
}

// S3Source downloads and enumerates bucket objects through the S3 API.
type S3Source struct {
	client     *s3.Client
	downloader *manager.Downloader
	logger     *slog.Logger
}

// NewS3Source builds an S3 source from configuration. Static credentials are
// used when provided; otherwise the SDK default chain applies.
func NewS3Source(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "S3Source", "NewS3Source", "load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Source{
		client:     client,
		downloader: manager.NewDownloader(client),
		logger:     logger,
	}, nil
}

// Download fetches the object into a temporary file. The returned cleanup
// func removes the file and must be deferred by the caller.
func (s *S3Source) Download(ctx context.Context, bucket, key string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "owui-sync-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "S3Source", "Download", "create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove temp download", "path", tmpName, "error", err)
		}
	}

	_, err = s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, errors.WrapTransient(err, "S3Source", "Download",
			"download "+bucket+"/"+key)
	}

	return tmpName, cleanup, nil
}

// ListKeys enumerates every key in the bucket, following pagination
func (s *S3Source) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.WrapTransient(err, "S3Source", "ListKeys",
				"list objects in "+bucket)
		}
		for _, object := range page.Contents {
			if object.Key != nil {
				keys = append(keys, *object.Key)
			}
		}
	}

	s.logger.Debug("listed bucket keys", "bucket", bucket, "count", len(keys))
	return keys, nil
}
