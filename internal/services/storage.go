package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"vitrine/internal/config"
	"vitrine/internal/utils/logger"
)

var storageLog = logger.New("STORAGE")

// ImageStore uploads a local file to the image host and returns its public
// URL. On success the local file is removed; a failed removal is logged and
// never returned. Implementations do not retry.
type ImageStore interface {
	Upload(ctx context.Context, localPath, folder string) (string, error)
}

// NewImageStore builds the store selected by STORAGE_PROVIDER.
func NewImageStore(ctx context.Context, cfg config.StorageConfig) (ImageStore, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Service(ctx, cfg)
	case "local":
		return NewLocalStore(cfg.BasePath, cfg.PublicURL)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service stores images in an S3 (or S3-compatible) bucket.
type S3Service struct {
	client    s3API
	bucket    string
	prefix    string
	publicURL string
}

func NewS3Service(ctx context.Context, cfg config.StorageConfig) (*S3Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Service{
		client:    client,
		bucket:    cfg.S3.Bucket,
		prefix:    cfg.Prefix,
		publicURL: s3PublicURL(cfg),
	}, nil
}

func s3PublicURL(cfg config.StorageConfig) string {
	switch {
	case cfg.PublicURL != "":
		return cfg.PublicURL
	case cfg.S3.Endpoint != "":
		return strings.TrimRight(cfg.S3.Endpoint, "/") + "/" + cfg.S3.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3.Bucket, cfg.S3.Region)
	}
}

func (s *S3Service) Upload(ctx context.Context, localPath, folder string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", UploadFailed(err)
	}
	defer file.Close()

	contentType := detectContentType(localPath)
	key := objectKey(s.prefix, folder, localPath)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		storageLog.Error("Failed to upload %s to bucket %s: %v", key, s.bucket, err)
		return "", UploadFailed(err)
	}

	file.Close()
	removeTemp(localPath)

	url := s.publicURL + "/" + key
	storageLog.Success("Uploaded %s", url)
	return url, nil
}

// LocalStore copies images into a directory served under /uploads.
type LocalStore struct {
	basePath  string
	publicURL string
}

func NewLocalStore(basePath, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		basePath:  basePath,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// BasePath is the directory served as /uploads.
func (l *LocalStore) BasePath() string {
	return l.basePath
}

func (l *LocalStore) Upload(ctx context.Context, localPath, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", UploadFailed(err)
	}

	key := objectKey("", folder, localPath)
	dest := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", UploadFailed(err)
	}
	if err := copyFile(localPath, dest); err != nil {
		return "", UploadFailed(err)
	}

	removeTemp(localPath)
	return l.publicURL + "/uploads/" + key, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func objectKey(prefix, folder, localPath string) string {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(localPath))
	return path.Join(prefix, folder, name)
}

func detectContentType(localPath string) string {
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

// removeTemp deletes an uploaded temp file. Failure only warns: the upload
// already succeeded.
func removeTemp(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		storageLog.Warn("Failed to remove temp file %s: %v", localPath, err)
	}
}
