package service

import (
	"context"
	"strings"
)

// SearchService 对外提供不经过生成的检索，供 /search 与命令行使用。
type SearchService interface {
	Search(ctx context.Context, query, docID string, limit int) Retrieval
}

type searchService struct {
	retrieval RetrievalService
	embedder  QueryEmbedder
}

// NewSearchService 创建一个新的 SearchService。
func NewSearchService(retrieval RetrievalService, embedder QueryEmbedder) SearchService {
	return &searchService{retrieval: retrieval, embedder: embedder}
}

// Search 对查询做嵌入后走完整的检索编排。limit 为宽召回数量，<=0 时使用配置值。
func (s *searchService) Search(ctx context.Context, query, docID string, limit int) Retrieval {
	query = strings.TrimSpace(query)
	if query == "" && docID == "" {
		return Retrieval{Branch: BranchEmpty}
	}
	var queryVec []float32
	if query != "" {
		queryVec = s.embedder.EmbedOne(ctx, query)
	}
	return s.retrieval.Retrieve(ctx, query, docID, limit, queryVec)
}
