// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中保留的请求体字节数上限。
const maxLoggedBody = 2048

// RequestLogger 是一个 Gin 中间件，记录请求的方法、路径、状态码、耗时和截断后的请求体。
// multipart 上传和流式响应的内容不记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			requestBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody+1))
			// 将已读取的部分拼回去，以便后续处理函数可以正常读取完整请求体
			c.Request.Body = readCloser{
				Reader: io.MultiReader(bytes.NewReader(requestBody), c.Request.Body),
				Closer: c.Request.Body,
			}
			if len(requestBody) > maxLoggedBody {
				requestBody = append(requestBody[:maxLoggedBody:maxLoggedBody], "..."...)
			}
		}

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", string(requestBody),
		)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
