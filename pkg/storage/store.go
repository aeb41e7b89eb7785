// Package storage 提供原始上传文件的存储：本地目录或 MinIO 对象存储。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// BlobStore 按对象名存取文件内容。
type BlobStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
}

// ObjectName 返回文档原始文件的对象名。
func ObjectName(docID, filename string) string {
	return fmt.Sprintf("documents/%s/%s", docID, filename)
}

// New 根据配置创建 BlobStore。
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Local.Dir)
	case "minio":
		return NewMinIOStore(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
