// Package pipeline 定义了文档处理的核心流程：提取、切块、入库、向量化与索引。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/es"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/storage"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tasks"
	"github.com/google/uuid"
)

var (
	errEmptyFile = errors.New("文件内容为空")
	errNoText    = errors.New("no readable text extracted from document")
)

// TextExtractor 从二进制文档中提取纯文本，由 Tika 客户端实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Embedder 为一批文本生成向量。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkIndexer 维护外部全文索引中的分块。
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, chunks []es.ChunkDocument) error
	DeleteByDocID(ctx context.Context, docID string) error
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	documents repository.DocumentRepository
	chunks    repository.ChunkRepository
	store     storage.BlobStore
	extractor TextExtractor
	embedder  Embedder
	index     ChunkIndexer
	chunking  config.ChunkingConfig
	metrics   *metrics.Metrics
}

// NewProcessor 创建一个新的 Processor 实例。index 可以为 nil。
func NewProcessor(
	documents repository.DocumentRepository,
	chunks repository.ChunkRepository,
	store storage.BlobStore,
	extractor TextExtractor,
	embedder Embedder,
	index ChunkIndexer,
	chunking config.ChunkingConfig,
	m *metrics.Metrics,
) *Processor {
	if chunking.Size <= 0 {
		chunking.Size = DefaultChunkWords
		chunking.Overlap = DefaultOverlapWords
	}
	return &Processor{
		documents: documents,
		chunks:    chunks,
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		chunking:  chunking,
		metrics:   m,
	}
}

// Process 是文档处理的主函数。任何一步失败都会把文档标记为 failed 并返回错误。
// 文档在处理过程中被删除时，清理已写入的分块和索引后返回 nil。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentTask) error {
	log.Infof("[Processor] 开始处理文档, doc_id: %s, filename: %s", task.DocID, task.Filename)
	if err := p.documents.UpdateStatus(ctx, task.DocID, model.DocumentProcessing); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			p.discard(task.DocID)
			return nil
		}
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	stats, err := p.process(ctx, task)
	if err == nil {
		if err = p.documents.MarkReady(ctx, task.DocID, stats.wordCount, stats.topicHint, stats.difficulty); err != nil {
			err = fmt.Errorf("更新文档状态失败: %w", err)
		}
	}
	if err != nil {
		if p.deleted(task.DocID, err) {
			p.discard(task.DocID)
			return nil
		}
		log.Errorf("[Processor] 文档处理失败, doc_id: %s, error: %v", task.DocID, err)
		if markErr := p.documents.MarkFailed(context.Background(), task.DocID, err.Error()); markErr != nil {
			log.Errorf("[Processor] 标记文档失败状态出错, doc_id: %s, error: %v", task.DocID, markErr)
		}
		p.metrics.Ingestion("failed")
		return err
	}

	p.metrics.Ingestion("ready")
	log.Infof("[Processor] 文档处理成功完成, doc_id: %s, 分块数: %d, 词数: %d", task.DocID, stats.chunkCount, stats.wordCount)
	return nil
}

// deleted 判断失败是否因为文档已被删除。原始文件可能先于文档行消失，所以再查一次文档。
func (p *Processor) deleted(docID string, err error) bool {
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return true
	}
	_, getErr := p.documents.GetByID(context.Background(), docID)
	return errors.Is(getErr, repository.ErrDocumentNotFound)
}

// discard 清除已删除文档残留的分块、向量和索引。
func (p *Processor) discard(docID string) {
	log.Warnf("[Processor] 文档已被删除, 丢弃处理结果, doc_id: %s", docID)
	ctx := context.Background()
	if err := p.chunks.DeleteByDocID(ctx, docID); err != nil {
		log.Errorf("[Processor] 清理已删除文档的分块失败, doc_id: %s, error: %v", docID, err)
	}
	if p.index != nil {
		if err := p.index.DeleteByDocID(ctx, docID); err != nil {
			log.Errorf("[Processor] 清理已删除文档的索引失败, doc_id: %s, error: %v", docID, err)
		}
	}
	p.metrics.Ingestion("discarded")
}

type documentStats struct {
	wordCount  int
	chunkCount int
	topicHint  string
	difficulty string
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentTask) (*documentStats, error) {
	// 1. 读取原始文件
	text, err := p.readText(ctx, task)
	if err != nil {
		return nil, err
	}
	log.Infof("[Processor] 步骤1: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 切块并替换旧分块
	pieces := splitWords(text, p.chunking.Size, p.chunking.Overlap)
	if len(pieces) == 0 {
		return nil, errNoText
	}
	rows := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		rows[i] = model.Chunk{ID: uuid.NewString(), DocID: task.DocID, ChunkIndex: i, Text: piece}
	}
	if err := p.chunks.ReplaceChunks(ctx, task.DocID, rows); err != nil {
		return nil, fmt.Errorf("保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤2: 成功将 %d 个分块存入数据库", len(rows))

	// 3. 向量化
	vectors, err := p.embedder.Embed(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("分块向量化失败: %w", err)
	}
	if len(vectors) != len(rows) {
		return nil, fmt.Errorf("向量数量 %d 与分块数量 %d 不一致", len(vectors), len(rows))
	}
	if err := p.chunks.DeleteEmbeddings(ctx, task.DocID); err != nil {
		return nil, fmt.Errorf("清理旧向量失败: %w", err)
	}
	for i, row := range rows {
		if err := p.chunks.UpsertEmbedding(ctx, task.DocID, row.ID, vectors[i]); err != nil {
			return nil, fmt.Errorf("保存分块 %d 的向量失败: %w", row.ChunkIndex, err)
		}
	}
	log.Infof("[Processor] 步骤3: %d 个分块向量化完成", len(rows))

	// 4. 可选：索引到 Elasticsearch
	if p.index != nil {
		if err := p.indexChunks(ctx, task.DocID, rows); err != nil {
			return nil, err
		}
	}

	wordCount := len(strings.Fields(text))
	return &documentStats{
		wordCount:  wordCount,
		chunkCount: len(rows),
		topicHint:  strings.Join(topKeywords(text, topicKeywords), ", "),
		difficulty: estimateDifficulty(wordCount),
	}, nil
}

func (p *Processor) readText(ctx context.Context, task tasks.DocumentTask) (string, error) {
	object, err := p.store.Get(ctx, task.StoragePath)
	if err != nil {
		return "", fmt.Errorf("读取原始文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return "", fmt.Errorf("读取原始文件失败: %w", err)
	}
	if buf.Len() == 0 {
		return "", errEmptyFile
	}

	var text string
	switch strings.ToLower(filepath.Ext(task.Filename)) {
	case ".txt", ".md":
		text = strings.ReplaceAll(buf.String(), "\r\n", "\n")
	default:
		if p.extractor == nil {
			return "", fmt.Errorf("no text extractor configured for %s", task.Filename)
		}
		text, err = p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.Filename)
		if err != nil {
			return "", fmt.Errorf("使用 Tika 提取文本失败: %w", err)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoText
	}
	return text, nil
}

func (p *Processor) indexChunks(ctx context.Context, docID string, rows []model.Chunk) error {
	if err := p.index.DeleteByDocID(ctx, docID); err != nil {
		return fmt.Errorf("清理 Elasticsearch 旧分块失败: %w", err)
	}
	docs := make([]es.ChunkDocument, len(rows))
	for i, row := range rows {
		docs[i] = es.ChunkDocument{ChunkID: row.ID, DocID: row.DocID, ChunkIndex: row.ChunkIndex, Text: row.Text}
	}
	if err := p.index.IndexChunks(ctx, docs); err != nil {
		return fmt.Errorf("索引分块到 Elasticsearch 失败: %w", err)
	}
	log.Infof("[Processor] 步骤4: %d 个分块已索引到 Elasticsearch", len(docs))
	return nil
}
