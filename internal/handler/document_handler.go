package handler

import (
	"errors"
	"net/http"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

func (h *DocumentHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound):
		respondError(c, http.StatusNotFound, "document not found")
	case errors.Is(err, service.ErrNoFile),
		errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrUnsupportedFile):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		log.Errorf("[DocumentHandler] %s 失败: %v", op, err)
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

// Upload 处理 multipart 上传（字段 file，可选 title）。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, service.ErrNoFile.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), service.UploadInput{
		Filename:    fileHeader.Filename,
		Title:       c.PostForm("title"),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Content:     file,
	})
	if err != nil {
		h.fail(c, "Upload", err)
		return
	}
	respondOK(c, "上传成功", doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.ListDocuments(c.Request.Context())
	if err != nil {
		h.fail(c, "List", err)
		return
	}
	respondOK(c, "success", docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docService.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Get", err)
		return
	}
	respondOK(c, "success", doc)
}

// Chunks 按顺序返回文档的分块。
func (h *DocumentHandler) Chunks(c *gin.Context) {
	chunks, err := h.docService.ListChunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Chunks", err)
		return
	}
	respondOK(c, "success", chunks)
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	doc, err := h.docService.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Reprocess", err)
		return
	}
	respondOK(c, "已重新提交处理", doc)
}

// Delete 处理删除文档的请求。
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docService.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "Delete", err)
		return
	}
	respondOK(c, "文档删除成功", nil)
}
