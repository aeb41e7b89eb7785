package handler

import (
	"net/http"
	"strconv"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理 GET /search?q=&doc_id=&limit=，返回检索编排的最终上下文与分支。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	docID := c.Query("doc_id")
	if query == "" && docID == "" {
		respondError(c, http.StatusBadRequest, "无效的查询参数")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}

	out := h.searchService.Search(c.Request.Context(), query, docID, limit)
	log.Infof("[SearchHandler] 检索完成, query: '%s', branch: %s, 返回 %d 条结果", query, out.Branch, len(out.Results))
	respondOK(c, "success", out)
}
