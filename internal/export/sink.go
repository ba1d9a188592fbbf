package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"character-card-wizard/internal/config"
)

// Sink stores an exported artifact and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, body []byte, contentType string) (string, error)
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink returns a sink rooted at dir, defaulting to ./output.
func NewLocalSink(dir string) *LocalSink {
	if dir == "" {
		dir = "./output"
	}
	return &LocalSink{baseDir: dir}
}

// Put writes through a temp file and renames it so a failed write never leaves a partial file.
func (l *LocalSink) Put(_ context.Context, name string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, sanitizeKey(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename file: %w", err)
	}
	return path, nil
}

// S3Sink puts artifacts into a bucket under a key prefix.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink builds a client from the default AWS chain plus the export settings.
func NewS3Sink(ctx context.Context, cfg config.Config) (*S3Sink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ExportS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ExportS3PathStyle
		if cfg.ExportS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ExportS3Endpoint)
		}
	})
	return &S3Sink{client: client, bucket: cfg.ExportS3Bucket, prefix: cfg.ExportS3Prefix}, nil
}

func (s *S3Sink) Put(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	key := sanitizeKey(s.prefix + name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func sanitizeKey(key string) string {
	key = filepath.ToSlash(filepath.Clean(key))
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimPrefix(key, "./")
	return key
}
