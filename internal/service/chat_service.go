package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/llm"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/google/uuid"
)

// ErrEmptyMessage 表示聊天消息为空或只有空白。
var ErrEmptyMessage = errors.New("message required")

const (
	defaultRules = "You are a cheerful, caring study companion. Answer accurately using the reference " +
		"material when it is relevant, cite it by number, and keep the tone warm and encouraging."
	defaultRefStart     = "<<REF>>"
	defaultRefEnd       = "<<END>>"
	defaultNoResultText = "(no reference material for this question)"
	maxSnippetRunes     = 1000
	offlineSnippetRunes = 220
)

// QueryEmbedder 把问题转成查询向量，不返回错误。
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

// ChatRequest 是一次提问。
type ChatRequest struct {
	Message   string `json:"message"`
	DocID     string `json:"doc_id"`
	SessionID string `json:"session_id"`
}

// ChatReply 是一次完整的回答。
type ChatReply struct {
	SessionID string               `json:"session_id"`
	Message   model.ChatMessage    `json:"message"`
	Context   []model.SearchResult `json:"context"`
	Mood      Mood                 `json:"mood"`
}

// ChatStream 接收流式回答过程中的事件。
type ChatStream interface {
	Context(results []model.SearchResult) error
	Token(token string) error
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
	// StreamChat 先推送检索上下文，再逐个推送 token，返回完整回答。
	// 已开始输出 token 后生成失败时返回错误。
	StreamChat(ctx context.Context, req ChatRequest, stream ChatStream) (*ChatReply, error)
}

type chatService struct {
	retrieval     RetrievalService
	embedder      QueryEmbedder
	llmClient     llm.Client
	conversations ConversationService
	documents     repository.DocumentRepository
	cfg           config.LLMConfig
}

// NewChatService 创建一个新的 ChatService 实例。llmClient 为 nil 时使用离线回复。
func NewChatService(
	retrieval RetrievalService,
	embedder QueryEmbedder,
	llmClient llm.Client,
	conversations ConversationService,
	documents repository.DocumentRepository,
	cfg config.LLMConfig,
) ChatService {
	return &chatService{
		retrieval:     retrieval,
		embedder:      embedder,
		llmClient:     llmClient,
		conversations: conversations,
		documents:     documents,
		cfg:           cfg,
	}
}

func (s *chatService) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	return s.StreamChat(ctx, req, discardStream{})
}

// StreamChat 协调 RAG 流程并流式传输 LLM 响应。
func (s *chatService) StreamChat(ctx context.Context, req ChatRequest, stream ChatStream) (*ChatReply, error) {
	query := strings.TrimSpace(req.Message)
	if query == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// 1. 检索上下文
	queryVec := s.embedder.EmbedOne(ctx, query)
	retrieval := s.retrieval.Retrieve(ctx, query, req.DocID, s.retrieval.InitialLimit(), queryVec)
	if err := stream.Context(retrieval.Results); err != nil {
		return nil, fmt.Errorf("failed to send context: %w", err)
	}

	// 2. 构建 system 消息与历史
	docTitle := s.attachmentTitle(ctx, req.DocID, retrieval.Results)
	systemMsg := s.buildSystemMessage(buildContextText(retrieval.Results), docTitle)
	history, err := s.conversations.GetConversationHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败, session: %s, error: %v", sessionID, err)
		history = nil
	}
	messages := composeMessages(systemMsg, history, query)

	// 3. 生成回答
	answer, err := s.generate(ctx, messages, query, retrieval.Results, stream)
	if err != nil {
		return nil, err
	}

	// 4. 保存历史，即使客户端已断开也要保存
	if err := s.conversations.AppendExchange(context.Background(), sessionID, query, answer); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败, session: %s, error: %v", sessionID, err)
	}

	return &ChatReply{
		SessionID: sessionID,
		Message:   model.ChatMessage{Role: "assistant", Content: answer, Timestamp: time.Now()},
		Context:   retrieval.Results,
		Mood:      MoodFromText(answer),
	}, nil
}

func (s *chatService) generate(ctx context.Context, messages []llm.Message, query string, results []model.SearchResult, stream ChatStream) (string, error) {
	if s.llmClient != nil {
		var answer strings.Builder
		err := s.llmClient.StreamChat(ctx, messages, s.buildGenerationParams(), llm.TokenWriterFunc(func(token string) error {
			answer.WriteString(token)
			return stream.Token(token)
		}))
		switch {
		case err == nil && answer.Len() > 0:
			return answer.String(), nil
		case err != nil && answer.Len() > 0:
			return "", fmt.Errorf("generation failed: %w", err)
		case err != nil && !errors.Is(err, llm.ErrNoAPIKey):
			log.Warnf("[ChatService] LLM 调用失败, 使用离线回复: %v", err)
		}
	}

	answer := offlineReply(query, results)
	for i, word := range strings.Fields(answer) {
		if i > 0 {
			word = " " + word
		}
		if err := stream.Token(word); err != nil {
			return "", fmt.Errorf("failed to send token: %w", err)
		}
	}
	return answer, nil
}

func (s *chatService) attachmentTitle(ctx context.Context, docID string, results []model.SearchResult) string {
	if docID == "" || len(results) == 0 || s.documents == nil {
		return ""
	}
	doc, err := s.documents.GetByID(ctx, docID)
	if err != nil {
		return ""
	}
	return doc.Title
}

// buildContextText 把检索结果编号拼接成参考资料文本。
func buildContextText(results []model.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, r.Source, truncateChars(r.Text, maxSnippetRunes, "…"))
	}
	return b.String()
}

func (s *chatService) buildSystemMessage(contextText, docTitle string) string {
	prompt := s.cfg.Prompt
	rules := orDefault(prompt.Rules, defaultRules)
	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\n")
	if docTitle != "" {
		fmt.Fprintf(&sys, "The user selected the document %q. The references below come from it; base the answer on them.\n\n", docTitle)
	}
	sys.WriteString(orDefault(prompt.RefStart, defaultRefStart))
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		sys.WriteString(orDefault(prompt.NoResultText, defaultNoResultText))
		sys.WriteString("\n")
	}
	sys.WriteString(orDefault(prompt.RefEnd, defaultRefEnd))
	return sys.String()
}

func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: "user", Content: userInput})
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	g := s.cfg.Generation
	var gp llm.GenerationParams
	if g.Temperature != 0 {
		t := g.Temperature
		gp.Temperature = &t
	}
	if g.TopP != 0 {
		p := g.TopP
		gp.TopP = &p
	}
	if g.MaxTokens != 0 {
		m := g.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

// offlineReply 在没有可用 LLM 时给出确定性的回答。
func offlineReply(query string, results []model.SearchResult) string {
	if len(results) == 0 {
		return "I'm here to help you study! Try uploading a document or asking about a topic from your notes, " +
			"and I'll give you content-specific guidance. You've got this!"
	}
	var b strings.Builder
	b.WriteString("Here's a focused answer based on your notes:\n")
	for i, r := range results {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncateChars(r.Text, offlineSnippetRunes, ""))
	}
	fmt.Fprintf(&b, "\nWhat you're asking: %s\nUse these points to review, and ask a follow-up whenever you want to go deeper together!", query)
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type discardStream struct{}

func (discardStream) Context([]model.SearchResult) error { return nil }

func (discardStream) Token(string) error { return nil }
