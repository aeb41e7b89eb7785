package pipeline

import (
	"context"
	"sync"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tasks"
)

// InlineDispatcher 在进程内处理文档任务，用于未配置 Kafka 的部署和命令行工具。
type InlineDispatcher struct {
	processor *Processor
	async     bool
	wg        sync.WaitGroup
}

// NewInlineDispatcher 创建进程内分发器。async 为 true 时任务在后台 goroutine 中执行。
func NewInlineDispatcher(processor *Processor, async bool) *InlineDispatcher {
	return &InlineDispatcher{processor: processor, async: async}
}

// Dispatch 处理一个任务。异步模式下总是返回 nil，失败体现在文档状态上。
func (d *InlineDispatcher) Dispatch(ctx context.Context, task tasks.DocumentTask) error {
	if !d.async {
		return d.processor.Process(ctx, task)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// 请求结束后仍需继续处理
		if err := d.processor.Process(context.Background(), task); err != nil {
			log.Warnf("[Dispatcher] 后台处理文档失败, doc_id: %s, error: %v", task.DocID, err)
		}
	}()
	return nil
}

// Wait 等待所有后台任务结束。
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
