package handler

import (
	"net/http"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetHistory 处理 GET /chat/history?session_id=。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		respondError(c, http.StatusBadRequest, "session_id required")
		return
	}
	history, err := h.service.GetConversationHistory(c.Request.Context(), sessionID)
	if err != nil {
		log.Errorf("[ConversationHandler] 获取对话历史失败, session: %s, error: %v", sessionID, err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve conversation history")
		return
	}
	respondOK(c, "success", history)
}

// ClearHistory 处理 DELETE /chat/history?session_id=。
func (h *ConversationHandler) ClearHistory(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		respondError(c, http.StatusBadRequest, "session_id required")
		return
	}
	if err := h.service.ClearConversation(c.Request.Context(), sessionID); err != nil {
		log.Errorf("[ConversationHandler] 清除对话历史失败, session: %s, error: %v", sessionID, err)
		respondError(c, http.StatusInternalServerError, "Failed to clear conversation history")
		return
	}
	respondOK(c, "success", nil)
}
