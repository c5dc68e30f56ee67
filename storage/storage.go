// Package storage wraps the object store that holds uploaded audio.
//
// Every object key has the shape "<containerId>/<filename>" where the
// container is a project id. Backends: MinIO, S3 (any S3-compatible service)
// and an in-memory store for development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"TrackShelf/config"
)

// Sentinel errors for storage operations.
var (
	ErrInvalidConfig = errors.New("storage: invalid configuration")
	ErrNotFound      = errors.New("storage: object not found")
	ErrAccessDenied  = errors.New("storage: access denied")
	ErrUpstream      = errors.New("storage: upstream error")
)

// ObjectInfo 描述存储中的一个对象
type ObjectInfo struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"` // key 去掉容器前缀后的部分
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

// Object is an opened object. Body may be nil when the object was only
// stat'ed. Callers must Close the body.
type Object struct {
	Key         string
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Close closes the body if there is one.
func (o *Object) Close() error {
	if o == nil || o.Body == nil {
		return nil
	}
	return o.Body.Close()
}

// ObjectStore is the object storage contract the rest of the application uses.
type ObjectStore interface {
	// List returns the objects directly inside a container.
	List(ctx context.Context, containerID string) ([]ObjectInfo, error)
	// ListPrefix returns every object under prefix.
	ListPrefix(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	SignedUploadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Bucket() string
}

// New 根据配置创建对象存储
func New(cfg *config.Config) (ObjectStore, error) {
	switch cfg.StorageDriver {
	case config.StorageMinio, "":
		return NewMinioStore(MinioOptions{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.StorageUseSSL,
		})
	case config.StorageS3:
		return NewS3Store(S3Options{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			PathStyle: cfg.StoragePathStyle,
		})
	case config.StorageMemory:
		return NewMemoryStore(cfg.StorageBucket), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.StorageDriver)
	}
}

func containerPrefix(containerID string) string {
	return containerID + "/"
}

func nameInContainer(key, prefix string) string {
	if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
