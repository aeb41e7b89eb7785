package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/metrics"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/rerank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrieval(lexical LexicalSearcher, vector VectorSearcher, provider rerank.Provider, chunks *fakeChunkRepo) RetrievalService {
	return NewRetrievalService(
		NewHybridSearcher(lexical, vector),
		NewReranker(provider, config.RerankConfig{}),
		chunks,
		config.RetrievalConfig{InitialLimit: 35, FinalLimit: 10},
		metrics.New("test"),
	)
}

func seedDocument(repo *fakeChunkRepo, docID string, n int) {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		// 倒序写入，验证读取时按 chunk_index 排序
		idx := n - 1 - i
		chunks[i] = model.Chunk{ID: fmt.Sprintf("%s-%02d", docID, idx), ChunkIndex: idx, Text: fmt.Sprintf("chunk %d", idx)}
	}
	_ = repo.ReplaceChunks(context.Background(), docID, chunks)
}

func TestRetrieveDocumentFallback(t *testing.T) {
	repo := newFakeChunkRepo()
	seedDocument(repo, "doc1", 14)
	provider := &reverseProvider{}

	out := newTestRetrieval(&fakeLexical{}, &fakeVector{}, provider, repo).
		Retrieve(context.Background(), "nothing matches", "doc1", 35, []float32{1, 0})

	assert.Equal(t, BranchDocumentFallback, out.Branch)
	require.Len(t, out.Results, 10)
	for i, r := range out.Results {
		assert.Equal(t, fmt.Sprintf("doc1-%02d", i), r.ChunkID)
		assert.Equal(t, model.SourceDocument, r.Source)
		assert.Equal(t, 1.0, r.Score)
	}
	assert.Nil(t, provider.gotDocs, "fallback must not rerank")
}

func TestRetrieveDocumentFallbackShortDocument(t *testing.T) {
	repo := newFakeChunkRepo()
	seedDocument(repo, "doc1", 3)

	out := newTestRetrieval(&fakeLexical{}, &fakeVector{}, nil, repo).Retrieve(context.Background(), "q", "doc1", 35, nil)
	assert.Equal(t, BranchDocumentFallback, out.Branch)
	assert.Len(t, out.Results, 3)
}

func TestRetrieveEmptyWithoutDocument(t *testing.T) {
	out := newTestRetrieval(&fakeLexical{}, &fakeVector{}, &reverseProvider{}, newFakeChunkRepo()).
		Retrieve(context.Background(), "q", "", 35, []float32{1})
	assert.Equal(t, BranchEmpty, out.Branch)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
}

func TestRetrieveRerankTruncates(t *testing.T) {
	lexical := &fakeLexical{results: candidates(20)}
	provider := &reverseProvider{}

	out := newTestRetrieval(lexical, &fakeVector{}, provider, newFakeChunkRepo()).
		Retrieve(context.Background(), "q", "", 35, nil)

	assert.Equal(t, BranchRerankTruncate, out.Branch)
	assert.Equal(t, 35, lexical.limit)
	assert.Len(t, provider.gotDocs, 20)
	require.Len(t, out.Results, 10)
	assert.Equal(t, "c19", out.Results[0].ChunkID)
}

func TestRetrieveRerankAll(t *testing.T) {
	lexical := &fakeLexical{results: candidates(4)}
	provider := &reverseProvider{}

	out := newTestRetrieval(lexical, &fakeVector{}, provider, newFakeChunkRepo()).
		Retrieve(context.Background(), "q", "", 0, nil)

	assert.Equal(t, BranchRerankAll, out.Branch)
	assert.Equal(t, 4, provider.gotTopN)
	require.Len(t, out.Results, 4)
	assert.Equal(t, "c3", out.Results[0].ChunkID)
}

func TestRetrieveRerankFailureStillReturnsContext(t *testing.T) {
	lexical := &fakeLexical{results: candidates(12)}

	out := newTestRetrieval(lexical, &fakeVector{}, &errorProvider{}, newFakeChunkRepo()).
		Retrieve(context.Background(), "q", "", 35, nil)

	assert.Equal(t, BranchRerankTruncate, out.Branch)
	assert.True(t, out.RerankDegraded)
	require.Len(t, out.Results, 10)
	assert.Equal(t, "c0", out.Results[0].ChunkID)
}

func TestRetrieveScopedWithResultsDoesNotFallBack(t *testing.T) {
	repo := newFakeChunkRepo()
	seedDocument(repo, "doc1", 5)
	vector := &fakeVector{results: []model.SearchResult{{ChunkID: "doc1-03", DocID: "doc1", Score: 0.7, Source: model.SourceSemantic}}}

	out := newTestRetrieval(&fakeLexical{}, vector, nil, repo).Retrieve(context.Background(), "q", "doc1", 35, []float32{1})
	assert.Equal(t, BranchRerankAll, out.Branch)
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.SourceSemantic, out.Results[0].Source)
}

func TestRetrievalLimits(t *testing.T) {
	svc := NewRetrievalService(nil, nil, nil, config.RetrievalConfig{}, nil)
	assert.Equal(t, DefaultInitialLimit, svc.InitialLimit())
	assert.Equal(t, DefaultFinalLimit, svc.FinalLimit())
}
