// Package main 是 tutorctl 命令行工具的入口点。
package main

import (
	"fmt"
	"os"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/cli"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
)

func main() {
	defer log.Sync()
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
