// Package storage 附件对象存储（S3兼容）
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage 基于 minio-go 的对象存储
type S3Storage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewS3Storage 创建对象存储客户端
func NewS3Storage(cfg config.StorageConfig) (*S3Storage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("对象存储缺少 endpoint 或 bucket 配置")
	}
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建对象存储客户端失败: %w", err)
	}
	return &S3Storage{client: cl, bucket: cfg.Bucket, baseURL: PublicBaseURL(cfg)}, nil
}

// EnsureBucket bucket 不存在时创建
func (s *S3Storage) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查bucket失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("创建bucket失败: %w", err)
	}
	return nil
}

// Put 上传对象，返回公开访问地址
func (s *S3Storage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传附件失败: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// PublicBaseURL 计算对象的公开地址前缀
func PublicBaseURL(cfg config.StorageConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.Trim(cfg.Endpoint, "/") + "/" + cfg.Bucket
}

// AttachmentKey 生成附件对象键：chat/<会话ID>/<唯一ID>-<文件名>
// 文件名中的路径成分会被去掉，避免越出前缀
func AttachmentKey(threadID, uniqueID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "file"
	}
	name = url.PathEscape(name)
	return "chat/" + threadID + "/" + uniqueID + "-" + name
}
