package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/es"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
)

// LexicalSearcher 执行关键词检索。结果按相关性降序，Score 越大越相关。
// 检索失败时返回空结果而不是错误。
type LexicalSearcher interface {
	Search(ctx context.Context, query, docID string, limit int) []model.SearchResult
}

// BuildMatchExpression 把用户输入转成安全的 FTS5 MATCH 表达式：
// 每个词用双引号包裹（内部的双引号加倍），词之间用空格连接，即 FTS5 的隐式 AND，
// 所以一个分块必须包含全部词才会命中。不含字母或数字的词会被丢弃，全部丢弃时返回空串。
func BuildMatchExpression(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if !strings.ContainsFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

type ftsLexicalSearcher struct {
	chunks  repository.ChunkRepository
	metrics *metrics.Metrics
}

// NewFTSLexicalSearcher 基于 SQLite FTS5 的关键词检索。
func NewFTSLexicalSearcher(chunks repository.ChunkRepository, m *metrics.Metrics) LexicalSearcher {
	return &ftsLexicalSearcher{chunks: chunks, metrics: m}
}

func (s *ftsLexicalSearcher) Search(ctx context.Context, query, docID string, limit int) []model.SearchResult {
	match := BuildMatchExpression(query)
	if match == "" || limit <= 0 {
		return nil
	}

	hits, err := s.chunks.SearchFTS(ctx, match, docID, limit)
	if err != nil {
		log.Warnf("[LexicalSearch] 全文检索失败, 返回空结果: %v", err)
		s.metrics.LeafFailure("lexical")
		return nil
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.SearchResult{
			ChunkID: h.ChunkID,
			DocID:   h.DocID,
			Text:    h.Text,
			// bm25() 越小越相关，取反后统一为越大越相关
			Score:  -h.Cost,
			Source: model.SourceKeyword,
		})
	}
	return results
}

// ChunkTextSearcher 是 Elasticsearch 分块索引的检索能力。
type ChunkTextSearcher interface {
	Search(ctx context.Context, query, docID string, limit int) ([]es.Hit, error)
}

type esLexicalSearcher struct {
	index   ChunkTextSearcher
	metrics *metrics.Metrics
}

// NewESLexicalSearcher 基于 Elasticsearch 的关键词检索，_score 已是越大越相关。
func NewESLexicalSearcher(index ChunkTextSearcher, m *metrics.Metrics) LexicalSearcher {
	return &esLexicalSearcher{index: index, metrics: m}
}

func (s *esLexicalSearcher) Search(ctx context.Context, query, docID string, limit int) []model.SearchResult {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil
	}

	hits, err := s.index.Search(ctx, query, docID, limit)
	if err != nil {
		log.Warnf("[LexicalSearch] Elasticsearch 检索失败, 返回空结果: %v", err)
		s.metrics.LeafFailure("lexical")
		return nil
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.SearchResult{
			ChunkID: h.ChunkID,
			DocID:   h.DocID,
			Text:    h.Text,
			Score:   h.Score,
			Source:  model.SourceKeyword,
		})
	}
	return results
}
