package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of the S3 client the mirror needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads snapshot files to an S3 bucket.
type S3Mirror struct {
	cfg    *appconfig.Config
	client objectPutter
	bucket string
	log    *logger.Log
}

// NewS3Mirror builds an S3 client from cfg.Storage.S3. Static credentials
// are used when both keys are configured; otherwise the default AWS chain
// applies.
func NewS3Mirror(ctx context.Context, cfg *appconfig.Config) (*S3Mirror, error) {
	s3cfg := cfg.Storage.S3
	if !s3cfg.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKeyID,
				s3cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	m := newS3Mirror(cfg, client)
	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": s3cfg.Bucket,
		"region": s3cfg.Region,
		"prefix": s3cfg.Prefix,
	}).Info("s3 snapshot mirror initialized")
	return m, nil
}

func newS3Mirror(cfg *appconfig.Config, client objectPutter) *S3Mirror {
	return &S3Mirror{
		cfg:    cfg,
		client: client,
		bucket: cfg.Storage.S3.Bucket,
		log:    logger.GetLogger(),
	}
}

// Upload puts the file at path under key and returns its s3:// location.
func (m *S3Mirror) Upload(ctx context.Context, key, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read snapshot for upload: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"compression":        m.cfg.Cache.Compression,
			"cryptolens-version": m.cfg.Cryptolens.Version,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	log := m.log.WithComponent("s3_mirror")
	logger.LogPerformanceEntry(log, "s3_mirror", "put_object", time.Since(start), logger.Fields{
		"key":   key,
		"bytes": len(data),
	})
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}
