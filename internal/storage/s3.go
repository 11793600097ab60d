package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config configures the S3 backend. Endpoint is set for S3-compatible
// services (MinIO, R2) and switches to path-style addressing.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores objects in a bucket.
type S3 struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

func NewS3(cfg S3Config, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "eu-west-3"
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := s3.Options{Region: cfg.Region}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	logger.Info("initialized s3 storage", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint)
	return &S3{client: s3.New(opts), bucket: cfg.Bucket, logger: logger}, nil
}

func (s *S3) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if _, err := cleanKey(key); err != nil {
		return &Error{Op: "Put", Key: key, Err: err}
	}
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &Error{Op: "Put", Key: key, Err: translateS3(err)}
	}
	s.logger.Debug("stored object", "key", key, "bucket", s.bucket)
	return nil
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := cleanKey(key); err != nil {
		return nil, &Error{Op: "Get", Key: key, Err: err}
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &Error{Op: "Get", Key: key, Err: translateS3(err)}
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if _, err := cleanKey(key); err != nil {
		return &Error{Op: "Delete", Key: key, Err: err}
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err = translateS3(err); errors.Is(err, ErrNotFound) {
			return nil
		}
		return &Error{Op: "Delete", Key: key, Err: err}
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := cleanKey(key); err != nil {
		return false, &Error{Op: "Exists", Key: key, Err: err}
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = translateS3(err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, &Error{Op: "Exists", Key: key, Err: err}
}

// translateS3 maps missing-object API errors to ErrNotFound.
func translateS3(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.ErrorMessage())
		}
	}
	return err
}
