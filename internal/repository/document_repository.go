package repository

import (
	"context"
	"errors"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error
	MarkReady(ctx context.Context, id string, wordCount int, topicHint, difficulty string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 按创建时间倒序返回所有文档。
func (r *documentRepository) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	return r.updates(ctx, id, map[string]interface{}{"status": status, "error_message": ""})
}

// MarkReady 记录处理结果并把状态置为 ready。
func (r *documentRepository) MarkReady(ctx context.Context, id string, wordCount int, topicHint, difficulty string) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":              model.DocumentReady,
		"word_count":          wordCount,
		"topic_hint":          topicHint,
		"difficulty_estimate": difficulty,
		"error_message":       "",
	})
}

func (r *documentRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.updates(ctx, id, map[string]interface{}{"status": model.DocumentFailed, "error_message": reason})
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

func (r *documentRepository) updates(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
