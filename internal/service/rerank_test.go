package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/rerank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int) []model.SearchResult {
	out := make([]model.SearchResult, n)
	for i := range out {
		src := model.SourceKeyword
		if i%2 == 1 {
			src = model.SourceSemantic
		}
		out[i] = model.SearchResult{
			ChunkID: fmt.Sprintf("c%d", i),
			DocID:   fmt.Sprintf("d%d", i%3),
			Text:    fmt.Sprintf("passage %d", i),
			Score:   float64(100 - i),
			Source:  src,
		}
	}
	return out
}

func TestRerankPassthroughOnFailure(t *testing.T) {
	provider := &errorProvider{}
	in := candidates(6)

	outcome := NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", in, 4)
	assert.True(t, outcome.Degraded)
	assert.Error(t, outcome.Err)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, outcome.Results, 4)

	for i, r := range outcome.Results {
		want := in[i]
		want.Score = 1
		assert.Equal(t, want, r)
	}
	// 输入不被修改
	assert.Equal(t, float64(100), in[0].Score)
}

func TestRerankPassthroughWithoutProvider(t *testing.T) {
	outcome := NewReranker(nil, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", candidates(3), 10)
	assert.True(t, outcome.Degraded)
	assert.Len(t, outcome.Results, 3)
}

func TestRerankReversesOrder(t *testing.T) {
	provider := &reverseProvider{}
	in := candidates(5)

	outcome := NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", in, 5)
	require.False(t, outcome.Degraded)
	require.Len(t, outcome.Results, 5)

	for i, r := range outcome.Results {
		orig := in[len(in)-1-i]
		assert.Equal(t, orig.ChunkID, r.ChunkID)
		assert.Equal(t, orig.DocID, r.DocID)
		assert.Equal(t, orig.Text, r.Text)
		assert.Equal(t, orig.Source, r.Source)
		assert.Equal(t, float64(len(in)-1-i)/10, r.Score)
	}
}

func TestRerankRespectsCap(t *testing.T) {
	provider := &reverseProvider{}
	outcome := NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", candidates(8), 3)
	require.Len(t, outcome.Results, 3)
	assert.Equal(t, 3, provider.gotTopN)
	assert.Equal(t, []string{"c7", "c6", "c5"}, []string{outcome.Results[0].ChunkID, outcome.Results[1].ChunkID, outcome.Results[2].ChunkID})
}

func TestRerankBatchAndTextLimits(t *testing.T) {
	provider := &reverseProvider{}
	in := candidates(60)
	in[0].Text = strings.Repeat("x", 9000)
	long := strings.Repeat("q", 5000)

	NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), long, in, 10)
	assert.Len(t, provider.gotDocs, 50)
	assert.Equal(t, strings.Repeat("x", 8000)+"...", provider.gotDocs[0])
	assert.Len(t, provider.gotQuery, 4000)
}

func TestRerankTruncatesByRune(t *testing.T) {
	assert.Equal(t, "你好...", truncateChars("你好世界", 2, "..."))
	assert.Equal(t, "你好世界", truncateChars("你好世界", 4, "..."))
}

func TestRerankInvalidIndexDegrades(t *testing.T) {
	provider := &staticProvider{results: []rerank.Result{{Index: 0, Score: 0.9}, {Index: 42, Score: 0.1}}}
	outcome := NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", candidates(3), 3)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, "c0", outcome.Results[0].ChunkID)
	assert.Equal(t, 1.0, outcome.Results[2].Score)
}

func TestRerankEmptyResponseDegrades(t *testing.T) {
	outcome := NewReranker(&staticProvider{}, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", candidates(2), 2)
	assert.True(t, outcome.Degraded)
	assert.Len(t, outcome.Results, 2)
}

func TestRerankNoCandidates(t *testing.T) {
	provider := &errorProvider{}
	outcome := NewReranker(provider, config.RerankConfig{}).RerankSearchResults(context.Background(), "q", nil, 10)
	assert.Empty(t, outcome.Results)
	assert.False(t, outcome.Degraded)
	assert.Equal(t, 0, provider.calls)
}
