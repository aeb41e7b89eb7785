package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/repository"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/rerank"
)

type fakeLexical struct {
	results []model.SearchResult
	calls   int
	limit   int
}

func (f *fakeLexical) Search(ctx context.Context, query, docID string, limit int) []model.SearchResult {
	f.calls++
	f.limit = limit
	return f.results
}

type fakeVector struct {
	results []model.SearchResult
	calls   int
	limit   int
}

func (f *fakeVector) Search(ctx context.Context, queryVec []float32, docID string, limit int) []model.SearchResult {
	f.calls++
	f.limit = limit
	return f.results
}

// fakeChunkRepo 是内存版的 ChunkRepository。
type fakeChunkRepo struct {
	mu         sync.Mutex
	chunks     map[string][]model.Chunk
	embeddings map[string]model.ChunkEmbedding
	ftsErr     error
	listErr    error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: map[string][]model.Chunk{}, embeddings: map[string]model.ChunkEmbedding{}}
}

func (f *fakeChunkRepo) ReplaceChunks(ctx context.Context, docID string, chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, e := range f.embeddings {
		if e.DocID == docID {
			delete(f.embeddings, id)
		}
	}
	cp := make([]model.Chunk, len(chunks))
	copy(cp, chunks)
	for i := range cp {
		cp[i].DocID = docID
	}
	f.chunks[docID] = cp
	return nil
}

func (f *fakeChunkRepo) GetChunksOrdered(ctx context.Context, docID string, limit int) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.Chunk(nil), f.chunks[docID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeChunkRepo) GetChunkTexts(ctx context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, chunks := range f.chunks {
		for _, c := range chunks {
			for _, id := range ids {
				if c.ID == id {
					out[id] = c.Text
				}
			}
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) CountChunks(ctx context.Context, docID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.chunks[docID])), nil
}

func (f *fakeChunkRepo) DeleteByDocID(ctx context.Context, docID string) error {
	_ = f.DeleteEmbeddings(ctx, docID)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, docID)
	return nil
}

func (f *fakeChunkRepo) DeleteEmbeddings(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, e := range f.embeddings {
		if e.DocID == docID {
			delete(f.embeddings, id)
		}
	}
	return nil
}

func (f *fakeChunkRepo) UpsertEmbedding(ctx context.Context, docID, chunkID string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[chunkID] = model.ChunkEmbedding{ChunkID: chunkID, DocID: docID, Vector: vector}
	return nil
}

func (f *fakeChunkRepo) ListEmbeddings(ctx context.Context, docID string) ([]model.ChunkEmbedding, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChunkEmbedding
	for _, e := range f.embeddings {
		if docID == "" || e.DocID == docID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

func (f *fakeChunkRepo) SearchFTS(ctx context.Context, match, docID string, limit int) ([]repository.FTSHit, error) {
	if f.ftsErr != nil {
		return nil, f.ftsErr
	}
	return nil, nil
}

var _ repository.ChunkRepository = (*fakeChunkRepo)(nil)

type reverseProvider struct {
	gotDocs  []string
	gotQuery string
	gotTopN  int
}

func (p *reverseProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.Result, error) {
	p.gotDocs = documents
	p.gotQuery = query
	p.gotTopN = topN
	var out []rerank.Result
	for i := len(documents) - 1; i >= 0 && len(out) < topN; i-- {
		out = append(out, rerank.Result{Index: i, Score: float64(i) / 10})
	}
	return out, nil
}

type errorProvider struct {
	calls int
}

func (p *errorProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.Result, error) {
	p.calls++
	return nil, errors.New("rerank service unavailable")
}

type staticProvider struct {
	results []rerank.Result
}

func (p *staticProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.Result, error) {
	return p.results, nil
}

func result(id string, score float64, source model.Source) model.SearchResult {
	return model.SearchResult{ChunkID: id, DocID: "doc-" + id, Text: "text " + id, Score: score, Source: source}
}
