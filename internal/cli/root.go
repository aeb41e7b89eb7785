// Package cli 实现 tutorctl 命令行工具：离线导入资料、检索、重建索引和单轮问答。
package cli

import (
	"context"
	"fmt"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/app"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd 创建 tutorctl 的根命令。
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "Study assistant retrieval toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml); empty uses defaults and TUTOR_* env")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); empty keeps the CLI quiet")

	root.AddCommand(
		newIngestCmd(opts),
		newSearchCmd(opts),
		newReindexCmd(opts),
		newDocsCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// Execute 运行根命令。
func Execute() error {
	return NewRootCmd().Execute()
}

// openApp 加载配置并以同步处理模式组装组件，调用方负责 Close。
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		log.Init(o.logLevel, "console", "")
	}

	a, err := app.New(ctx, cfg, app.Options{SyncProcessing: true})
	if err != nil {
		return nil, fmt.Errorf("初始化失败: %w", err)
	}
	return a, nil
}
