package service

import (
	"context"
	"sort"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"golang.org/x/sync/errgroup"
)

// HybridSearcher 并发执行关键词与向量检索并合并结果。
type HybridSearcher struct {
	lexical LexicalSearcher
	vector  VectorSearcher
}

// NewHybridSearcher 创建一个 HybridSearcher。
func NewHybridSearcher(lexical LexicalSearcher, vector VectorSearcher) *HybridSearcher {
	return &HybridSearcher{lexical: lexical, vector: vector}
}

// Search 返回至多 limit 条结果。queryVec 为 nil 时只做关键词检索；
// 否则关键词取 limit 条、向量取 2*limit 条，两路互不影响。
func (h *HybridSearcher) Search(ctx context.Context, query, docID string, limit int, queryVec []float32) []model.SearchResult {
	if queryVec == nil {
		return FuseResults(limit, h.lexical.Search(ctx, query, docID, limit))
	}

	var keyword, semantic []model.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keyword = h.lexical.Search(gctx, query, docID, limit)
		return nil
	})
	g.Go(func() error {
		semantic = h.vector.Search(gctx, queryVec, docID, limit*2)
		return nil
	})
	_ = g.Wait()

	return FuseResults(limit, keyword, semantic)
}

// FuseResults 按 chunk_id 去重：同一分块保留原始分数更高的那条（连同其来源），
// 不做归一化也不求和。结果按分数降序（分数相同保持先到顺序），截断到 limit。
//
// 不同来源的分数量级不同，一条弱的关键词命中可能排在强的向量命中之前。
func FuseResults(limit int, sets ...[]model.SearchResult) []model.SearchResult {
	if limit <= 0 {
		return nil
	}

	best := make(map[string]int)
	var merged []model.SearchResult
	for _, set := range sets {
		for _, item := range set {
			idx, ok := best[item.ChunkID]
			if !ok {
				best[item.ChunkID] = len(merged)
				merged = append(merged, item)
				continue
			}
			if item.Score > merged[idx].Score {
				merged[idx] = item
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
