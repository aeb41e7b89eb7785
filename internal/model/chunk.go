package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/vector"
)

// Chunk 是文档文本的一个连续片段，也是检索的基本单位。
// 同一 doc_id 下 chunk_index 唯一，写入后不再修改；重新处理时整体删除再插入。
type Chunk struct {
	ID         string `gorm:"type:varchar(64);primaryKey" json:"chunk_id"`
	DocID      string `gorm:"type:varchar(64);not null;uniqueIndex:idx_chunk_doc_index,priority:1" json:"doc_id"`
	ChunkIndex int    `gorm:"not null;uniqueIndex:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Text       string `gorm:"column:chunk_text;type:text;not null" json:"text"`
}

func (Chunk) TableName() string {
	return "document_chunks"
}

// ChunkEmbedding 与 Chunk 一一对应，doc_id 冗余存储以便按文档过滤扫描。
type ChunkEmbedding struct {
	ChunkID string `gorm:"type:varchar(64);primaryKey"`
	DocID   string `gorm:"type:varchar(64);not null;index"`
	Vector  Vector `gorm:"column:embedding;not null"`
}

func (ChunkEmbedding) TableName() string {
	return "chunk_embeddings"
}

// Vector 以小端 float32 blob 形式落库。
type Vector []float32

// GormDataType 让 AutoMigrate 在 sqlite 与 mysql 上都建成 blob 列。
func (Vector) GormDataType() string {
	return "blob"
}

// Value 实现 driver.Valuer。
func (v Vector) Value() (driver.Value, error) {
	return vector.Encode(v), nil
}

// Scan 实现 sql.Scanner。
func (v *Vector) Scan(src interface{}) error {
	switch b := src.(type) {
	case []byte:
		decoded, err := vector.Decode(b)
		if err != nil {
			return err
		}
		*v = decoded
		return nil
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("无法将 %T 解析为向量", src)
	}
}
