// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tasks"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务最多处理的次数。
const maxAttempts = 3

// TaskProcessor 处理一个文档任务，使消费者与具体流水线解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentTask) error
}

// Brokers 把逗号分隔的地址列表拆开。
func Brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 把文档任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(Brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

// Dispatch 发送一个文档处理任务，以 doc_id 作为消息键。
func (p *Producer) Dispatch(ctx context.Context, task tasks.DocumentTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.DocID), Value: value})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录任务已开始的处理次数，使重启后的重投不会从零计数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttempts struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 返回基于 Redis 的失败计数器，计数保留 24 小时。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttempts{rdb: rdb}
}

func (r *redisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = r.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (r *redisAttempts) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// messageReader 是 Consumer 用到的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 从 Kafka 读取文档任务并同步处理。
// 失败的任务在进程内重试，最多 maxAttempts 次后提交 offset；
// 分组 Reader 不会重投未提交的消息，所以重试不能交给 Kafka。
type Consumer struct {
	reader     messageReader
	topic      string
	processor  TaskProcessor
	attempts   AttemptCounter
	retryDelay time.Duration
}

// NewConsumer 创建消费者。attempts 用于跨重启累计失败次数，可以为 nil。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  Brokers(cfg.Brokers),
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}),
		topic:      cfg.Topic,
		processor:  processor,
		attempts:   attempts,
		retryDelay: 2 * time.Second,
	}
}

// Run 持续消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("[Kafka] 消费者已停止")
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		if !c.handle(ctx, m.Value) {
			// 只有停机时才会走到这里，offset 不提交，重启后重新投递
			log.Info("[Kafka] 消费者已停止")
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Kafka] 提交消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，返回是否应当提交 offset。
// 返回 false 仅当 ctx 在重试过程中被取消。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.DocumentTask
	if err := json.Unmarshal(value, &task); err != nil || task.DocID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.DocID)
	local := int64(0)
	for {
		attempt := c.nextAttempt(ctx, attemptsKey, &local)
		if attempt > maxAttempts {
			log.Errorf("[Kafka] 文档任务此前已失败 %d 次，跳过: doc_id=%s", attempt-1, task.DocID)
			c.resetAttempts(attemptsKey)
			return true
		}

		log.Infof("[Kafka] 开始处理文档任务: doc_id=%s, filename=%s, attempt=%d", task.DocID, task.Filename, attempt)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[Kafka] 文档任务处理成功: doc_id=%s", task.DocID)
			c.resetAttempts(attemptsKey)
			return true
		}
		log.Errorf("[Kafka] 处理文档任务失败: doc_id=%s, attempt=%d, error: %v", task.DocID, attempt, err)
		if attempt >= maxAttempts {
			log.Errorf("[Kafka] 文档任务多次失败(>=%d)，提交 offset 终止重试: doc_id=%s", maxAttempts, task.DocID)
			c.resetAttempts(attemptsKey)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
}

// nextAttempt 返回本次是第几次尝试。Redis 不可用时退回进程内计数。
func (c *Consumer) nextAttempt(ctx context.Context, key string, local *int64) int64 {
	*local++
	if c.attempts == nil {
		return *local
	}
	n, err := c.attempts.Incr(ctx, key)
	if err != nil {
		log.Warnf("[Kafka] 失败计数器不可用，使用进程内计数: %v", err)
		return *local
	}
	if n < *local {
		return *local
	}
	return n
}

func (c *Consumer) resetAttempts(key string) {
	if c.attempts == nil {
		return
	}
	if err := c.attempts.Reset(context.Background(), key); err != nil {
		log.Warnf("[Kafka] 重置失败计数失败: %v", err)
	}
}
