package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Endpoint  string // empty for AWS itself
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// ObjectPutter is the upload capability the uploader needs.
// manager.Uploader satisfies it.
type ObjectPutter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader copies backup archives to object storage.
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader ObjectPutter
	log      zerolog.Logger
}

// NewS3Uploader builds an uploader from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3UploaderWith(cfg.Bucket, cfg.Prefix, manager.NewUploader(client), log), nil
}

// NewS3UploaderWith uses an existing putter.
func NewS3UploaderWith(bucket, prefix string, putter ObjectPutter, log zerolog.Logger) *S3Uploader {
	return &S3Uploader{
		bucket:   bucket,
		prefix:   prefix,
		uploader: putter,
		log:      log.With().Str("service", "s3_upload").Str("bucket", bucket).Logger(),
	}
}

// Upload sends the archive at path and returns its object key.
func (u *S3Uploader) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	key := u.prefix + filepath.Base(path)
	start := time.Now()
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.log.Info().Str("key", key).Dur("duration", time.Since(start)).Msg("Backup uploaded")
	return key, nil
}
