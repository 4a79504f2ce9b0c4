package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"holylandtour/internal/config"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("storage: file not found")
	ErrPathTraversal = errors.New("storage: invalid file path")
)

// Storage keeps generated files such as admin exports.
type Storage interface {
	// Store saves content under prefix and returns the storage key.
	Store(ctx context.Context, prefix, filename string, content io.Reader, contentType string) (string, error)

	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// GetURL returns a time-limited URL for S3 or an API path for local files.
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// New creates the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch Type(cfg.Type) {
	case TypeLocal, "":
		basePath := cfg.LocalPath
		if basePath == "" {
			basePath = "./exports"
		}
		return NewLocalStorage(basePath)
	case TypeS3:
		if cfg.S3Bucket == "" || cfg.S3Region == "" {
			return nil, fmt.Errorf("storage: S3 storage requires STORAGE_S3_BUCKET and STORAGE_S3_REGION")
		}
		return NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region)
	default:
		return nil, fmt.Errorf("storage: unknown storage type: %s", cfg.Type)
	}
}

// newKey builds prefix/year/month/uuid_filename.
func newKey(prefix, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%s_%s",
		strings.Trim(prefix, "/"),
		now.Year(),
		now.Month(),
		uuid.New().String(),
		sanitizeFilename(filename),
	)
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", "..", "_", ":", "_", "*", "_",
	"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

func sanitizeFilename(filename string) string {
	return filenameReplacer.Replace(filename)
}
