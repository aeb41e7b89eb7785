// Package main 是 HTTP 服务的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/app"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	seedDir := flag.String("seed-dir", "initfile", "启动时导入的资料目录")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 组装全部组件
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gin.SetMode(cfg.Server.Mode)
	a, err := app.New(ctx, &cfg, app.Options{})
	if err != nil {
		log.Fatal("组件初始化失败", err)
	}

	// 4. 启动后台 Kafka 消费者（未配置时直接返回）
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := a.RunConsumer(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Kafka 消费者退出", err)
		}
	}()

	// 5. 导入初始资料目录，已导入的文件会跳过
	go func() {
		if _, err := a.ImportDir(ctx, *seedDir); err != nil {
			log.Warnf("[Seed] 遍历目录发生错误: %v", err)
		}
	}()

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: a.Router(),
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}

	cancel()
	<-consumerDone
	a.Close()
	log.Info("服务已优雅关闭")
}
