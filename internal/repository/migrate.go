package repository

import (
	"fmt"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"gorm.io/gorm"
)

// FTS5 外部内容表，与 document_chunks 通过 rowid 关联，由触发器保持同步。
var ftsStatements = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS document_chunks_fts USING fts5(
		chunk_text,
		doc_id UNINDEXED,
		chunk_index UNINDEXED,
		content='document_chunks',
		content_rowid='rowid',
		tokenize='porter unicode61'
	)`,
	`CREATE TRIGGER IF NOT EXISTS document_chunks_ai AFTER INSERT ON document_chunks BEGIN
		INSERT INTO document_chunks_fts(rowid, chunk_text, doc_id, chunk_index)
		VALUES (new.rowid, new.chunk_text, new.doc_id, new.chunk_index);
	END`,
	`CREATE TRIGGER IF NOT EXISTS document_chunks_ad AFTER DELETE ON document_chunks BEGIN
		INSERT INTO document_chunks_fts(document_chunks_fts, rowid, chunk_text, doc_id, chunk_index)
		VALUES ('delete', old.rowid, old.chunk_text, old.doc_id, old.chunk_index);
	END`,
	`CREATE TRIGGER IF NOT EXISTS document_chunks_au AFTER UPDATE ON document_chunks BEGIN
		INSERT INTO document_chunks_fts(document_chunks_fts, rowid, chunk_text, doc_id, chunk_index)
		VALUES ('delete', old.rowid, old.chunk_text, old.doc_id, old.chunk_index);
		INSERT INTO document_chunks_fts(rowid, chunk_text, doc_id, chunk_index)
		VALUES (new.rowid, new.chunk_text, new.doc_id, new.chunk_index);
	END`,
}

// Migrate 建表；在 sqlite 上额外创建全文索引与同步触发器。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Document{}, &model.Chunk{}, &model.ChunkEmbedding{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() != "sqlite" {
		log.Infof("[Migrate] 数据库方言为 %s, 跳过 FTS5 索引", db.Dialector.Name())
		return nil
	}

	var existing int64
	if err := db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'document_chunks_fts'").Scan(&existing).Error; err != nil {
		return fmt.Errorf("inspect fts table: %w", err)
	}

	for _, stmt := range ftsStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create fts index: %w", err)
		}
	}

	// 索引是后建的，已有分块需要回填
	if existing == 0 {
		if err := db.Exec("INSERT INTO document_chunks_fts(document_chunks_fts) VALUES ('rebuild')").Error; err != nil {
			return fmt.Errorf("rebuild fts index: %w", err)
		}
	}
	return nil
}
