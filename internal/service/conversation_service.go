package service

import (
	"context"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
)

// ConversationService 定义了按会话管理对话历史的接口。
// repo 为 nil（未配置 Redis）时历史始终为空，追加操作直接忽略。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	AppendExchange(ctx context.Context, sessionID, question, answer string) error
	ClearConversation(ctx context.Context, sessionID string) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 获取会话的消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if s.repo == nil || sessionID == "" {
		return []model.ChatMessage{}, nil
	}
	return s.repo.GetHistory(ctx, sessionID)
}

// AppendExchange 把一问一答追加到会话历史中。
func (s *conversationService) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	if s.repo == nil || sessionID == "" {
		return nil
	}
	history, err := s.repo.GetHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	return s.repo.SaveHistory(ctx, sessionID, history)
}

func (s *conversationService) ClearConversation(ctx context.Context, sessionID string) error {
	if s.repo == nil || sessionID == "" {
		return nil
	}
	return s.repo.DeleteHistory(ctx, sessionID)
}
