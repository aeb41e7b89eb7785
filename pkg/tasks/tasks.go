// Package tasks 定义了通过 Kafka 传递的文档处理任务。
package tasks

// DocumentTask 描述一次文档处理（首次入库或重新处理）。
type DocumentTask struct {
	DocID       string `json:"doc_id"`
	StoragePath string `json:"storage_path"`
	Filename    string `json:"filename"`
}
