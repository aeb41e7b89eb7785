package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天请求：普通 JSON、SSE 流和 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func bindChatRequest(c *gin.Context) (service.ChatRequest, bool) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "message required")
		return req, false
	}
	return req, true
}

// Chat 处理 POST /chat，返回完整的回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}
	reply, err := h.chatService.Chat(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		log.Errorf("[ChatHandler] 生成回答失败: %v", err)
		respondError(c, http.StatusInternalServerError, "AI服务暂时不可用，请稍后重试")
		return
	}
	// 对话接口直接返回 {session_id, message, context, mood}，不套统一信封
	c.JSON(http.StatusOK, reply)
}

// sseChatStream 把聊天事件写成 SSE。
type sseChatStream struct {
	sse *sseWriter
}

func (s *sseChatStream) Context(results []model.SearchResult) error {
	return s.sse.event("context", gin.H{"context": results})
}

func (s *sseChatStream) Token(token string) error {
	return s.sse.event("token", gin.H{"token": token})
}

// Stream 处理 POST /chat/stream：依次发送 context、token、mood、done 事件。
func (h *ChatHandler) Stream(c *gin.Context) {
	req, ok := bindChatRequest(c)
	if !ok {
		return
	}

	sse := newSSEWriter(c)
	reply, err := h.chatService.StreamChat(c.Request.Context(), req, &sseChatStream{sse: sse})
	if err != nil {
		log.Errorf("[ChatHandler] 流式响应失败: %v", err)
		_ = sse.event("error", gin.H{"error": err.Error()})
		return
	}
	_ = sse.event("mood", gin.H{"mood": reply.Mood})
	_ = sse.event("done", gin.H{"message": reply.Message.Content, "session_id": reply.SessionID})
}

// wsFrame 是 WebSocket 上发送的消息帧。
type wsFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type wsChatStream struct {
	conn *websocket.Conn
}

func (s *wsChatStream) Context(results []model.SearchResult) error {
	return s.conn.WriteJSON(wsFrame{Type: "context", Data: results})
}

func (s *wsChatStream) Token(token string) error {
	return s.conn.WriteJSON(wsFrame{Type: "token", Data: token})
}

// WebSocket 处理 GET /chat/ws。每条客户端消息是一个 ChatRequest。
func (h *ChatHandler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ChatHandler] WebSocket 连接已建立, remote: %s", conn.RemoteAddr())

	stream := &wsChatStream{conn: conn}
	for {
		var req service.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		reply, err := h.chatService.StreamChat(c.Request.Context(), req, stream)
		if err != nil {
			log.Errorf("[ChatHandler] 处理流式响应失败: %v", err)
			if werr := conn.WriteJSON(wsFrame{Type: "error", Data: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(wsFrame{Type: "mood", Data: reply.Mood}); err != nil {
			return
		}
		if err := conn.WriteJSON(wsFrame{Type: "done", Data: reply}); err != nil {
			return
		}
	}
}
