package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
)

const presignExpiry = time.Hour

// Storage archives finished downloads to an S3-compatible bucket
type Storage struct {
	client     *minio.Client
	bucketName string
	prefix     string
	logger     *logging.Logger
}

// New connects to the bucket, creating it on first use.
func New(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if err := ensureBucket(ctx, client, cfg.BucketName, cfg.Region); err != nil {
		return nil, err
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
		logger:     logger,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads a finished file and returns its object name
func (s *Storage) Archive(ctx context.Context, jobID, filePath string) (string, error) {
	objectName := ObjectName(s.prefix, jobID, filePath)

	start := time.Now()
	info, err := s.client.FPutObject(ctx, s.bucketName, objectName, filePath, minio.PutObjectOptions{
		ContentType: getContentType(filePath),
		UserMetadata: map[string]string{
			"job-id": jobID,
		},
	})
	s.logger.LogStorageOperation("archive", s.bucketName, objectName, info.Size, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return objectName, nil
}

// GetURL returns a presigned URL for an archived object
func (s *Storage) GetURL(ctx context.Context, objectName string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}

	return url.String(), nil
}

// List lists archived objects for a job, or all when jobID is empty
func (s *Storage) List(ctx context.Context, jobID string) ([]string, error) {
	var objects []string

	prefix := s.prefix
	if jobID != "" {
		prefix = path.Join(s.prefix, jobID) + "/"
	}

	start := time.Now()
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			s.logger.LogStorageOperation("list", s.bucketName, prefix, 0, time.Since(start), object.Err)
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, object.Key)
	}
	s.logger.LogStorageOperation("list", s.bucketName, prefix, int64(len(objects)), time.Since(start), nil)

	return objects, nil
}

// ObjectName builds <prefix>/<jobID>/<file name>. Object keys always use
// forward slashes regardless of the local OS.
func ObjectName(prefix, jobID, filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimPrefix(path.Join(prefix, jobID, base), "/")
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// getContentType maps the containers yt-dlp produces; anything else is
// uploaded as a generic binary.
func getContentType(filePath string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filePath))]; ok {
		return ct
	}
	return "application/octet-stream"
}
