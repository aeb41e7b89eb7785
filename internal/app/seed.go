package app

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
)

// IngestFile 通过标准上传流程导入一个本地文件。
func (a *App) IngestFile(ctx context.Context, path string) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s 是目录", path)
	}

	return a.DocumentSvc.Upload(ctx, service.UploadInput{
		Filename:    info.Name(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Content:     f,
	})
}

// ImportDir 导入目录下尚未入库的文件（按文件名判断，幂等），返回新导入的数量。
// 目录不存在时直接跳过。
func (a *App) ImportDir(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0, nil
	}

	existing, err := a.Documents.List(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, doc := range existing {
		seen[doc.Filename] = struct{}{}
	}

	imported := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := seen[d.Name()]; ok {
			log.Infof("[Seed] 已存在，跳过: %s", d.Name())
			return nil
		}
		doc, err := a.IngestFile(ctx, path)
		if err != nil {
			log.Warnf("[Seed] 导入失败: %s, err=%v", path, err)
			return nil
		}
		seen[d.Name()] = struct{}{}
		imported++
		log.Infof("[Seed] 导入完成: %s (id=%s, status=%s)", d.Name(), doc.ID, doc.Status)
		return nil
	})
	return imported, walkErr
}
