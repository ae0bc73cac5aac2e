package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/config"
)

// S3Sink mirrors export archives into an S3 bucket
type S3Sink struct {
	client               s3iface.S3API
	bucketName           string
	keyPrefix            string
	serverSideEncryption string
	acl                  string
	kmsKeyID             string
	logger               *zap.Logger
}

// NewS3Sink creates a sink for the configured bucket and verifies access to it
func NewS3Sink(cfg config.ExportConfig, logger *zap.Logger) (*S3Sink, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}

	// Custom endpoints are S3-compatible stores such as MinIO
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
		awsConfig.DisableSSL = aws.Bool(strings.HasPrefix(cfg.S3Endpoint, "http://"))
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	if _, err := client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(cfg.S3BucketName)}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3BucketName, err)
	}

	return newWithClient(client, cfg, logger), nil
}

func newWithClient(client s3iface.S3API, cfg config.ExportConfig, logger *zap.Logger) *S3Sink {
	return &S3Sink{
		client:               client,
		bucketName:           cfg.S3BucketName,
		keyPrefix:            cfg.KeyPrefix,
		serverSideEncryption: cfg.S3ServerSideEncryption,
		acl:                  cfg.S3ACL,
		kmsKeyID:             cfg.S3KMSKeyID,
		logger:               logger,
	}
}

func (a *S3Sink) Name() string {
	return "s3"
}

// Put uploads reader as an object under the configured key prefix
func (a *S3Sink) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		body = bytes.NewReader(data)
	}

	contentType, err := mimetype.DetectReader(body)
	if err != nil {
		return fmt.Errorf("failed to detect archive type: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}

	objectKey := a.objectKey(key)
	putInput := &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if size >= 0 {
		putInput.ContentLength = aws.Int64(size)
	}

	if a.serverSideEncryption != "" {
		putInput.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == "aws:kms" && a.kmsKeyID != "" {
			putInput.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if a.acl != "" {
		putInput.ACL = aws.String(a.acl)
	}
	putInput.ContentType = aws.String(contentType.String())

	if _, err := a.client.PutObjectWithContext(ctx, putInput); err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}

	a.logger.Debug("Archive mirrored to S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", objectKey),
		zap.Int64("size", size))
	return nil
}

// Close closes any resources used by the S3 sink
func (a *S3Sink) Close() error {
	return nil
}

func (a *S3Sink) objectKey(key string) string {
	return a.keyPrefix + strings.TrimPrefix(filepath.ToSlash(key), "/")
}
