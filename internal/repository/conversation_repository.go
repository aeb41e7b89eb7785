// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/go-redis/redis/v8"
)

const (
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了按会话存取对话历史的接口。
type ConversationRepository interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	SaveHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient redis.Cmdable
}

// NewConversationRepository 创建一个基于 Redis 的 ConversationRepository。
func NewConversationRepository(redisClient redis.Cmdable) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

// GetHistory 从 Redis 获取对话历史记录，没有记录时返回空切片。
func (r *redisConversationRepository) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// SaveHistory 保存最近 20 条消息，7 天过期。
func (r *redisConversationRepository) SaveHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(sessionID), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) DeleteHistory(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, conversationKey(sessionID)).Err()
}
