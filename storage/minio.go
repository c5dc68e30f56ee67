package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"TrackShelf/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions MinIO 连接参数
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// MinioStore 封装了 MinIO 客户端
type MinioStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStore 创建一个新的 MinIO 存储
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket are required", ErrInvalidConfig)
	}

	// minio.New 只接受 host:port
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL || strings.HasPrefix(opts.Endpoint, "https://"),
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 创建 MinIO 客户端失败: %v", ErrInvalidConfig, err)
	}

	return &MinioStore{client: client, bucketName: opts.Bucket}, nil
}

// Bucket 返回存储桶名称
func (m *MinioStore) Bucket() string {
	return m.bucketName
}

// EnsureBucket 检查存储桶，不存在时创建
func (m *MinioStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return wrapMinioError(err, ErrUpstream)
	}
	if exists {
		logger.Info("存储桶已存在", logger.String("bucket", m.bucketName))
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
		return wrapMinioError(err, ErrUpstream)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", m.bucketName))
	return nil
}

// List 列出容器下的对象（不递归）
func (m *MinioStore) List(ctx context.Context, containerID string) ([]ObjectInfo, error) {
	return m.ListPrefix(ctx, containerPrefix(containerID), false)
}

// ListPrefix 按前缀列出对象
func (m *MinioStore) ListPrefix(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})

	var objects []ObjectInfo
	for object := range objectCh {
		if object.Err != nil {
			return nil, wrapMinioError(object.Err, ErrUpstream)
		}
		// 非递归列表会返回公共前缀（“目录”）
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Name:         nameInContainer(object.Key, prefix),
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
	}
	return objects, nil
}

// Get 获取对象内容
func (m *MinioStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapMinioError(err, ErrUpstream)
	}
	// GetObject 是惰性的，Stat 才会真正发出请求
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, wrapMinioError(err, ErrUpstream)
	}
	return &Object{
		Key:         key,
		Body:        obj,
		Size:        info.Size,
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
	}, nil
}

// Stat 获取对象元数据
func (m *MinioStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrapMinioError(err, ErrUpstream)
	}
	return &ObjectInfo{
		Key:          key,
		Name:         key[strings.LastIndex(key, "/")+1:],
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
	}, nil
}

// Put 上传对象
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return wrapMinioError(err, ErrUpstream)
	}
	return nil
}

// Remove 删除对象
func (m *MinioStore) Remove(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return wrapMinioError(err, ErrUpstream)
	}
	return nil
}

// SignedURL 生成带过期时间的下载链接
func (m *MinioStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, ttl, nil)
	if err != nil {
		return "", wrapMinioError(err, ErrUpstream)
	}
	return u.String(), nil
}

// SignedUploadURL 生成客户端直传用的 PUT 链接
func (m *MinioStore) SignedUploadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedPutObject(ctx, m.bucketName, key, ttl)
	if err != nil {
		return "", wrapMinioError(err, ErrUpstream)
	}
	return u.String(), nil
}

// wrapMinioError maps MinIO error responses onto the storage sentinels.
func wrapMinioError(err error, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", fallback, err)
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
