package model

import "time"

// DocumentStatus 表示文档的处理状态。
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document 对应于数据库中的 documents 表，记录上传文件的元数据和处理结果。
type Document struct {
	ID                 string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title              string         `gorm:"type:varchar(255);not null" json:"title"`
	Filename           string         `gorm:"type:varchar(255);not null" json:"filename"`
	MimeType           string         `gorm:"type:varchar(128);not null" json:"mime_type"`
	SizeBytes          int64          `gorm:"not null" json:"size_bytes"`
	Status             DocumentStatus `gorm:"type:varchar(16);not null;default:processing;index" json:"status"`
	WordCount          int            `gorm:"not null;default:0" json:"word_count"`
	TopicHint          string         `gorm:"type:varchar(255)" json:"topic_hint"`
	DifficultyEstimate string         `gorm:"type:varchar(16)" json:"difficulty_estimate"`
	StoragePath        string         `gorm:"type:varchar(512);not null" json:"storage_path"`
	ErrorMessage       string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
