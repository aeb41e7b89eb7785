package service

import (
	"context"
	"sort"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/vector"
)

// VectorSearcher 按余弦相似度降序返回最相近的分块。
type VectorSearcher interface {
	Search(ctx context.Context, queryVec []float32, docID string, limit int) []model.SearchResult
}

type scanVectorSearcher struct {
	chunks  repository.ChunkRepository
	metrics *metrics.Metrics
}

// NewVectorSearcher 对存储的全部向量做线性扫描（docID 非空时只扫描该文档）。
func NewVectorSearcher(chunks repository.ChunkRepository, m *metrics.Metrics) VectorSearcher {
	return &scanVectorSearcher{chunks: chunks, metrics: m}
}

func (s *scanVectorSearcher) Search(ctx context.Context, queryVec []float32, docID string, limit int) []model.SearchResult {
	if len(queryVec) == 0 || limit <= 0 {
		return nil
	}

	rows, err := s.chunks.ListEmbeddings(ctx, docID)
	if err != nil {
		log.Warnf("[VectorSearch] 读取向量失败, 返回空结果: %v", err)
		s.metrics.LeafFailure("vector")
		return nil
	}

	results := make([]model.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = model.SearchResult{
			ChunkID: r.ChunkID,
			DocID:   r.DocID,
			Score:   vector.Cosine(queryVec, r.Vector),
			Source:  model.SourceSemantic,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	texts, err := s.chunks.GetChunkTexts(ctx, ids)
	if err != nil {
		log.Warnf("[VectorSearch] 读取分块文本失败, 文本置空: %v", err)
	}
	// 分块行缺失时文本为空
	for i := range results {
		results[i].Text = texts[results[i].ChunkID]
	}
	return results
}
