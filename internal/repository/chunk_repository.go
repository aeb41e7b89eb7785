package repository

import (
	"context"
	"errors"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FTSHit 是全文索引的一条原始命中，Cost 为 bm25() 的原始值，越小越相关。
type FTSHit struct {
	ChunkID string
	DocID   string
	Text    string
	Cost    float64
}

// ChunkRepository 持久化文档分块及其向量。所有批量写操作都限定在单个 doc_id 内。
type ChunkRepository interface {
	ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk) error
	GetChunksOrdered(ctx context.Context, docID string, limit int) ([]model.Chunk, error)
	GetChunkTexts(ctx context.Context, ids []string) (map[string]string, error)
	CountChunks(ctx context.Context, docID string) (int64, error)
	DeleteByDocID(ctx context.Context, docID string) error

	DeleteEmbeddings(ctx context.Context, docID string) error
	UpsertEmbedding(ctx context.Context, docID, chunkID string, vector []float32) error
	ListEmbeddings(ctx context.Context, docID string) ([]model.ChunkEmbedding, error)

	SearchFTS(ctx context.Context, match, docID string, limit int) ([]FTSHit, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// lockDocument 在事务内确认文档仍然存在并持有共享锁，文档已删除时返回 ErrDocumentNotFound。
// 分块与向量的写入都经过它，删除文档后迟到的处理任务无法再写入。
func lockDocument(tx *gorm.DB, docID string) error {
	var doc model.Document
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Select("id").Where("id = ?", docID).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDocumentNotFound
	}
	return err
}

// ReplaceChunks 在一个事务内删除该文档已有的分块和向量，再批量写入新分块。
// 文档不存在时返回 ErrDocumentNotFound。
func (r *chunkRepository) ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, docID); err != nil {
			return err
		}
		if err := tx.Where("doc_id = ?", docID).Delete(&model.ChunkEmbedding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("doc_id = ?", docID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].DocID = docID
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// GetChunksOrdered 按 chunk_index 升序返回文档分块，limit<=0 表示全部。
func (r *chunkRepository) GetChunksOrdered(ctx context.Context, docID string, limit int) ([]model.Chunk, error) {
	var chunks []model.Chunk
	q := r.db.WithContext(ctx).Where("doc_id = ?", docID).Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&chunks).Error
	return chunks, err
}

// GetChunkTexts 返回 id 到文本的映射，不存在的 id 不会出现在结果中。
func (r *chunkRepository) GetChunkTexts(ctx context.Context, ids []string) (map[string]string, error) {
	texts := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return texts, nil
	}
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).Select("id", "chunk_text").Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		return nil, err
	}
	for _, c := range chunks {
		texts[c.ID] = c.Text
	}
	return texts, nil
}

func (r *chunkRepository) CountChunks(ctx context.Context, docID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("doc_id = ?", docID).Count(&n).Error
	return n, err
}

// DeleteByDocID 删除文档的全部分块与向量。
func (r *chunkRepository) DeleteByDocID(ctx context.Context, docID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ?", docID).Delete(&model.ChunkEmbedding{}).Error; err != nil {
			return err
		}
		return tx.Where("doc_id = ?", docID).Delete(&model.Chunk{}).Error
	})
}

func (r *chunkRepository) DeleteEmbeddings(ctx context.Context, docID string) error {
	return r.db.WithContext(ctx).Where("doc_id = ?", docID).Delete(&model.ChunkEmbedding{}).Error
}

// UpsertEmbedding 写入或覆盖一个分块的向量。文档不存在时返回 ErrDocumentNotFound。
func (r *chunkRepository) UpsertEmbedding(ctx context.Context, docID, chunkID string, vector []float32) error {
	row := model.ChunkEmbedding{ChunkID: chunkID, DocID: docID, Vector: vector}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, docID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"doc_id", "embedding"}),
		}).Create(&row).Error
	})
}

// ListEmbeddings 返回全部向量，docID 非空时只返回该文档的向量。
func (r *chunkRepository) ListEmbeddings(ctx context.Context, docID string) ([]model.ChunkEmbedding, error) {
	var rows []model.ChunkEmbedding
	q := r.db.WithContext(ctx)
	if docID != "" {
		q = q.Where("doc_id = ?", docID)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// SearchFTS 在 FTS5 索引上执行 MATCH，按 bm25 代价升序返回。match 必须是已转义的表达式。
func (r *chunkRepository) SearchFTS(ctx context.Context, match, docID string, limit int) ([]FTSHit, error) {
	var hits []FTSHit
	err := r.db.WithContext(ctx).Raw(`
		SELECT dc.id AS chunk_id, dc.doc_id AS doc_id, dc.chunk_text AS text, bm25(document_chunks_fts) AS cost
		FROM document_chunks_fts
		JOIN document_chunks dc ON dc.rowid = document_chunks_fts.rowid
		WHERE document_chunks_fts MATCH ? AND (? = '' OR dc.doc_id = ?)
		ORDER BY cost ASC
		LIMIT ?`, match, docID, docID, limit).Scan(&hits).Error
	return hits, err
}
