package service

import (
	"context"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
)

const (
	DefaultInitialLimit = 35
	DefaultFinalLimit   = 10
)

// Branch 标识编排器本次走的分支。
type Branch string

const (
	BranchEmpty            Branch = "empty"
	BranchDocumentFallback Branch = "document_fallback"
	BranchRerankTruncate   Branch = "rerank_truncate"
	BranchRerankAll        Branch = "rerank_all"
)

// Retrieval 是一次检索的最终上下文。
type Retrieval struct {
	Results        []model.SearchResult `json:"results"`
	Branch         Branch               `json:"branch"`
	RerankDegraded bool                 `json:"rerank_degraded"`
}

// RetrievalService 把问题转成最终上下文，自身从不返回错误。
type RetrievalService interface {
	Retrieve(ctx context.Context, query, docID string, initialLimit int, queryVec []float32) Retrieval
	InitialLimit() int
	FinalLimit() int
}

type retrievalService struct {
	hybrid       *HybridSearcher
	reranker     *Reranker
	chunks       repository.ChunkRepository
	initialLimit int
	finalLimit   int
	metrics      *metrics.Metrics
}

// NewRetrievalService 创建检索编排器。
func NewRetrievalService(
	hybrid *HybridSearcher,
	reranker *Reranker,
	chunks repository.ChunkRepository,
	cfg config.RetrievalConfig,
	m *metrics.Metrics,
) RetrievalService {
	s := &retrievalService{
		hybrid:       hybrid,
		reranker:     reranker,
		chunks:       chunks,
		initialLimit: cfg.InitialLimit,
		finalLimit:   cfg.FinalLimit,
		metrics:      m,
	}
	if s.initialLimit <= 0 {
		s.initialLimit = DefaultInitialLimit
	}
	if s.finalLimit <= 0 {
		s.finalLimit = DefaultFinalLimit
	}
	return s
}

func (s *retrievalService) InitialLimit() int { return s.initialLimit }

func (s *retrievalService) FinalLimit() int { return s.finalLimit }

// Retrieve 先宽召回，再窄重排：
//   - 指定了文档但没有命中时，按 chunk_index 取该文档前 finalLimit 个分块，不重排；
//   - 命中数超过 finalLimit 时重排并只保留前 finalLimit 条；
//   - 命中数在 1..finalLimit 之间时对全部结果重排。
func (s *retrievalService) Retrieve(ctx context.Context, query, docID string, initialLimit int, queryVec []float32) Retrieval {
	if initialLimit <= 0 {
		initialLimit = s.initialLimit
	}

	fused := s.hybrid.Search(ctx, query, docID, initialLimit, queryVec)
	log.Debugf("[Retrieval] 混合检索命中 %d 条, doc_id: %q", len(fused), docID)

	var out Retrieval
	switch {
	case len(fused) == 0 && docID != "":
		out = Retrieval{Results: s.documentFallback(ctx, docID), Branch: BranchDocumentFallback}
	case len(fused) == 0:
		out = Retrieval{Results: []model.SearchResult{}, Branch: BranchEmpty}
	default:
		branch := BranchRerankAll
		n := len(fused)
		if n > s.finalLimit {
			branch = BranchRerankTruncate
			n = s.finalLimit
		}
		outcome := s.reranker.RerankSearchResults(ctx, query, fused, n)
		if outcome.Degraded {
			s.metrics.RerankDegraded()
		}
		out = Retrieval{Results: outcome.Results, Branch: branch, RerankDegraded: outcome.Degraded}
	}

	s.metrics.RetrievalBranch(string(out.Branch))
	log.Infof("[Retrieval] 分支: %s, 上下文条数: %d", out.Branch, len(out.Results))
	return out
}

func (s *retrievalService) documentFallback(ctx context.Context, docID string) []model.SearchResult {
	chunks, err := s.chunks.GetChunksOrdered(ctx, docID, s.finalLimit)
	if err != nil {
		log.Warnf("[Retrieval] 读取文档分块失败, doc_id: %s, error: %v", docID, err)
		return []model.SearchResult{}
	}
	results := make([]model.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, model.SearchResult{
			ChunkID: c.ID,
			DocID:   c.DocID,
			Text:    c.Text,
			Score:   1,
			Source:  model.SourceDocument,
		})
	}
	return results
}
