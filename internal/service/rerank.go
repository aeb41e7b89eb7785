package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/rerank"
)

const (
	defaultRerankMaxDocuments  = 50
	defaultRerankMaxTextChars  = 8000
	defaultRerankMaxQueryChars = 4000

	// passthroughScore 标记未经重排的结果
	passthroughScore = 1.0
)

var errNoRerankProvider = errors.New("no rerank provider configured")

// RerankOutcome 是一次重排的结果。Degraded 为 true 时 Results 保持输入顺序，
// 分数统一为 1，Err 记录降级原因。
type RerankOutcome struct {
	Results  []model.SearchResult
	Degraded bool
	Err      error
}

// Reranker 用交叉编码模型对候选结果重新排序，任何失败都降级为原顺序。
type Reranker struct {
	provider      rerank.Provider
	maxDocuments  int
	maxTextChars  int
	maxQueryChars int
}

// NewReranker 创建 Reranker。provider 可以为 nil，此时总是降级。
func NewReranker(provider rerank.Provider, cfg config.RerankConfig) *Reranker {
	r := &Reranker{
		provider:      provider,
		maxDocuments:  cfg.MaxDocuments,
		maxTextChars:  cfg.MaxTextChars,
		maxQueryChars: cfg.MaxQueryChars,
	}
	if r.maxDocuments <= 0 {
		r.maxDocuments = defaultRerankMaxDocuments
	}
	if r.maxTextChars <= 0 {
		r.maxTextChars = defaultRerankMaxTextChars
	}
	if r.maxQueryChars <= 0 {
		r.maxQueryChars = defaultRerankMaxQueryChars
	}
	return r
}

// RerankSearchResults 返回至多 n 条重排后的候选。只替换 Score 与顺序，其余字段原样保留。
func (r *Reranker) RerankSearchResults(ctx context.Context, query string, candidates []model.SearchResult, n int) RerankOutcome {
	if len(candidates) == 0 {
		return RerankOutcome{}
	}
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}
	if r.provider == nil {
		return passthrough(candidates, n, errNoRerankProvider)
	}

	submitted := candidates
	if len(submitted) > r.maxDocuments {
		submitted = submitted[:r.maxDocuments]
	}
	texts := make([]string, len(submitted))
	for i, c := range submitted {
		texts[i] = truncateChars(c.Text, r.maxTextChars, "...")
	}
	topN := n
	if topN > len(submitted) {
		topN = len(submitted)
	}

	scored, err := r.provider.Rerank(ctx, truncateChars(query, r.maxQueryChars, ""), texts, topN)
	if err != nil {
		return passthrough(candidates, n, err)
	}
	if len(scored) == 0 {
		return passthrough(candidates, n, errors.New("rerank returned no results"))
	}

	out := make([]model.SearchResult, 0, topN)
	seen := make(map[int]bool, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(submitted) {
			return passthrough(candidates, n, fmt.Errorf("rerank index %d out of range", s.Index))
		}
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		item := submitted[s.Index]
		item.Score = s.Score
		out = append(out, item)
		if len(out) == topN {
			break
		}
	}
	return RerankOutcome{Results: out}
}

func passthrough(candidates []model.SearchResult, n int, err error) RerankOutcome {
	if !errors.Is(err, rerank.ErrNoAPIKey) && !errors.Is(err, errNoRerankProvider) {
		log.Warnf("[Reranker] 重排失败, 保持原顺序: %v", err)
	}
	out := make([]model.SearchResult, n)
	copy(out, candidates[:n])
	for i := range out {
		out[i].Score = passthroughScore
	}
	return RerankOutcome{Results: out, Degraded: true, Err: err}
}

// truncateChars 按字符（rune）截断，超出时追加 suffix。
func truncateChars(s string, max int, suffix string) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + suffix
}
