package app

import (
	"context"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/handler"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Router 创建 gin 引擎并注册全部路由。
func (a *App) Router() *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), middleware.Metrics(a.Metrics), gin.Recovery())

	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	r.GET("/health", handler.NewHealthHandler(checks).Health)
	r.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	chatHandler := handler.NewChatHandler(a.Chat)
	conversationHandler := handler.NewConversationHandler(a.Conversations)
	chat := r.Group("/chat")
	{
		chat.POST("", chatHandler.Chat)
		chat.POST("/stream", chatHandler.Stream)
		chat.GET("/ws", chatHandler.WebSocket)
		chat.GET("/history", conversationHandler.GetHistory)
		chat.DELETE("/history", conversationHandler.ClearHistory)
	}

	r.GET("/search", handler.NewSearchHandler(a.Search).Search)

	documentHandler := handler.NewDocumentHandler(a.DocumentSvc)
	documents := r.Group("/documents")
	{
		documents.POST("", documentHandler.Upload)
		documents.GET("", documentHandler.List)
		documents.GET("/:id", documentHandler.Get)
		documents.GET("/:id/chunks", documentHandler.Chunks)
		documents.POST("/:id/reprocess", documentHandler.Reprocess)
		documents.DELETE("/:id", documentHandler.Delete)
	}
	return r
}
