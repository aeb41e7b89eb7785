package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/storage"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tasks"
	"github.com/google/uuid"
)

var (
	ErrNoFile          = errors.New("no file")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds max upload size")
	ErrUnsupportedFile = errors.New("unsupported file extension")
)

// TaskDispatcher 把文档处理任务交给 Kafka 或进程内处理器。
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task tasks.DocumentTask) error
}

// ChunkIndexCleaner 删除外部索引中某个文档的分块。
type ChunkIndexCleaner interface {
	DeleteByDocID(ctx context.Context, docID string) error
}

// UploadInput 描述一次上传。
type UploadInput struct {
	Filename    string
	Title       string
	ContentType string
	Size        int64
	Content     io.Reader
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)
	ListDocuments(ctx context.Context) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListChunks(ctx context.Context, id string) ([]model.Chunk, error)
	Reprocess(ctx context.Context, id string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

type documentService struct {
	documents  repository.DocumentRepository
	chunks     repository.ChunkRepository
	store      storage.BlobStore
	dispatcher TaskDispatcher
	index      ChunkIndexCleaner
	maxBytes   int64
	allowed    map[string]struct{}
}

// NewDocumentService 创建一个新的 DocumentService 实例。index 可以为 nil。
func NewDocumentService(
	documents repository.DocumentRepository,
	chunks repository.ChunkRepository,
	store storage.BlobStore,
	dispatcher TaskDispatcher,
	index ChunkIndexCleaner,
	cfg config.UploadConfig,
) DocumentService {
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &documentService{
		documents:  documents,
		chunks:     chunks,
		store:      store,
		dispatcher: dispatcher,
		index:      index,
		maxBytes:   maxBytes,
		allowed:    allowed,
	}
}

// Upload 校验并保存原始文件，创建 processing 状态的文档记录，然后分发处理任务。
func (s *documentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if in.Content == nil {
		return nil, ErrNoFile
	}
	if in.Size > s.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, s.maxBytes)
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		filename = "document.txt"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.allowed[ext]; !ok {
		return nil, ErrUnsupportedFile
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if t := mime.TypeByExtension(ext); t != "" {
			contentType = t
		} else {
			contentType = "application/octet-stream"
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	docID := uuid.NewString()
	objectName := storage.ObjectName(docID, filename)
	if err := s.store.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	doc := &model.Document{
		ID:          docID,
		Title:       title,
		Filename:    filename,
		MimeType:    contentType,
		SizeBytes:   int64(len(data)),
		Status:      model.DocumentProcessing,
		StoragePath: objectName,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		_ = s.store.Delete(context.Background(), objectName)
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	log.Infof("[DocumentService] 文档已上传, doc_id: %s, filename: %s, size: %d", docID, filename, len(data))

	if err := s.dispatch(ctx, doc); err != nil {
		return nil, err
	}
	return s.documents.GetByID(ctx, docID)
}

func (s *documentService) dispatch(ctx context.Context, doc *model.Document) error {
	task := tasks.DocumentTask{DocID: doc.ID, StoragePath: doc.StoragePath, Filename: doc.Filename}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		log.Errorf("[DocumentService] 分发文档任务失败, doc_id: %s, error: %v", doc.ID, err)
		return fmt.Errorf("document processing failed: %w", err)
	}
	return nil
}

func (s *documentService) ListDocuments(ctx context.Context) ([]model.Document, error) {
	return s.documents.List(ctx)
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// ListChunks 按顺序返回文档的全部分块。
func (s *documentService) ListChunks(ctx context.Context, id string) ([]model.Chunk, error) {
	if _, err := s.documents.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.GetChunksOrdered(ctx, id, 0)
}

// Reprocess 重新处理已上传的文档，旧的分块和向量会被替换。
func (s *documentService) Reprocess(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.documents.UpdateStatus(ctx, id, model.DocumentProcessing); err != nil {
		return nil, err
	}
	if err := s.dispatch(ctx, doc); err != nil {
		return nil, err
	}
	return s.documents.GetByID(ctx, id)
}

// DeleteDocument 删除文档及其分块、向量、索引和原始文件。
// 先删文档行：仍在处理中的任务此后写不进分块，会自行清理已写入的部分。
func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocID(ctx, id); err != nil {
		return fmt.Errorf("删除文档分块失败: %w", err)
	}
	if s.index != nil {
		if err := s.index.DeleteByDocID(ctx, id); err != nil {
			log.Warnf("[DocumentService] 删除 Elasticsearch 分块失败, doc_id: %s, error: %v", id, err)
		}
	}
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		log.Warnf("[DocumentService] 删除原始文件失败, doc_id: %s, error: %v", id, err)
	}
	return nil
}
