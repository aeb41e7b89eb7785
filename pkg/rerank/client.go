// Package rerank 是交叉编码重排服务（DashScope 兼容接口）的 HTTP 客户端。
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
)

const defaultInstruct = "Given a web search query, retrieve relevant passages that answer the query."

var (
	// ErrNoAPIKey 表示没有配置凭证，调用不会发出。
	ErrNoAPIKey = errors.New("rerank api key not configured")
	// ErrMalformedResponse 表示响应无法解析或引用了不存在的文档。
	ErrMalformedResponse = errors.New("malformed rerank response")
)

// StatusError 表示服务返回了非 2xx 状态码。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rerank returned status %d: %s", e.Code, e.Body)
}

// Result 是一条重排结果，Index 指向提交的 documents 数组中的位置。
type Result struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Provider 对 (query, document) 对打分并按相关性返回前 topN 条。
type Provider interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}

// Client 通过 HTTP 调用外部重排服务，每次调用只尝试一次。
type Client struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
	Instruct  string   `json:"instruct,omitempty"`
}

// rerankResponse 用指针区分缺失字段与零值。
type rerankResponse struct {
	Results []struct {
		Index *int     `json:"index"`
		Score *float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewClient 根据配置创建客户端，超时未配置时为 15 秒。
func NewClient(cfg config.RerankConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/compatible-api/v1/reranks",
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

// Rerank 实现 Provider。
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	reqBody, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
		Instruct:  defaultInstruct,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	results := make([]Result, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if r.Index == nil || r.Score == nil {
			return nil, fmt.Errorf("%w: result %d missing index or relevance_score", ErrMalformedResponse, i)
		}
		if *r.Index < 0 || *r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrMalformedResponse, *r.Index, len(documents))
		}
		results = append(results, Result{Index: *r.Index, Score: *r.Score})
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
