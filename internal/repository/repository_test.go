package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		assert.NoError(t, database.Close(db))
	})
	docs := NewDocumentRepository(db)
	for _, id := range []string{"doc1", "doc2"} {
		require.NoError(t, docs.Create(context.Background(), &model.Document{
			ID: id, Title: id, Filename: id + ".md", MimeType: "text/markdown", StoragePath: "documents/" + id + "/" + id + ".md",
		}))
	}
	return db
}

func chunksOf(docID string, texts ...string) []model.Chunk {
	out := make([]model.Chunk, len(texts))
	for i, text := range texts {
		out[i] = model.Chunk{ID: docID + "-c" + string(rune('0'+i)), ChunkIndex: i, Text: text}
	}
	return out
}

func TestReplaceChunksIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))

	for round := 0; round < 2; round++ {
		chunks := chunksOf("doc1", "alpha text", "beta text", "gamma text")
		require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunks))
		require.NoError(t, repo.DeleteEmbeddings(ctx, "doc1"))
		for _, c := range chunks {
			require.NoError(t, repo.UpsertEmbedding(ctx, "doc1", c.ID, []float32{1, 0}))
		}
	}

	n, err := repo.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	embeddings, err := repo.ListEmbeddings(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, embeddings, 3)

	// 全文索引也只保留一份
	hits, err := repo.SearchFTS(ctx, `"alpha"`, "doc1", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestReplaceChunksOnlyTouchesOneDocument(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))

	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "one")))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc2", chunksOf("doc2", "two", "three")))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "uno", "dos")))

	n, err := repo.CountChunks(ctx, "doc2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestGetChunksOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))

	chunks := chunksOf("doc1", "first", "second", "third")
	// 逆序插入，读取时必须按 chunk_index 排序
	reversed := []model.Chunk{chunks[2], chunks[0], chunks[1]}
	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", reversed))

	got, err := repo.GetChunksOrdered(ctx, "doc1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Text, got[1].Text, got[2].Text})

	limited, err := repo.GetChunksOrdered(ctx, "doc1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGetChunkTextsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "hello")))

	texts, err := repo.GetChunkTexts(ctx, []string{"doc1-c0", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"doc1-c0": "hello"}, texts)
}

func TestUpsertEmbeddingOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "hello")))

	require.NoError(t, repo.UpsertEmbedding(ctx, "doc1", "doc1-c0", []float32{1, 2, 3}))
	require.NoError(t, repo.UpsertEmbedding(ctx, "doc1", "doc1-c0", []float32{4, 5, 6}))

	rows, err := repo.ListEmbeddings(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Vector{4, 5, 6}, rows[0].Vector)
}

func TestSearchFTSReturnsCostsAscending(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(setupTestDB(t))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1",
		"Newton's first law describes inertia.",
		"Newton's second law relates force, mass and acceleration. Newton laws are central.",
		"Unrelated cooking recipe with flour and sugar.",
	)))
	require.NoError(t, repo.ReplaceChunks(ctx, "doc2", chunksOf("doc2", "Newton in another document")))

	hits, err := repo.SearchFTS(ctx, `"Newton's" OR "laws"`, "doc1", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "doc1", h.DocID)
		assert.NotContains(t, h.Text, "cooking")
	}
	assert.LessOrEqual(t, hits[0].Cost, hits[1].Cost)

	all, err := repo.SearchFTS(ctx, `"Newton"`, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSearchFTSSyntaxError(t *testing.T) {
	repo := NewChunkRepository(setupTestDB(t))
	_, err := repo.SearchFTS(context.Background(), `"unterminated`, "", 10)
	assert.Error(t, err)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupTestDB(t))

	doc := &model.Document{ID: "doc1", Title: "Physics", Filename: "physics.txt", MimeType: "text/plain", SizeBytes: 42, Status: model.DocumentProcessing, StoragePath: "documents/doc1/physics.txt"}
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, repo.MarkReady(ctx, "doc1", 120, "newton, force", "easy"))
	got, err := repo.GetByID(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)
	assert.Equal(t, 120, got.WordCount)
	assert.Equal(t, "easy", got.DifficultyEstimate)

	require.NoError(t, repo.MarkFailed(ctx, "doc1", "boom"))
	got, err = repo.GetByID(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, repo.Delete(ctx, "doc1"))
	_, err = repo.GetByID(ctx, "doc1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "doc1", "x"), ErrDocumentNotFound)
}

func TestChunkWritesRequireDocument(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewChunkRepository(db)

	err := repo.ReplaceChunks(ctx, "ghost", chunksOf("ghost", "late"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, repo.UpsertEmbedding(ctx, "ghost", "ghost-c0", []float32{1}), ErrDocumentNotFound)

	require.NoError(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "hello")))
	require.NoError(t, NewDocumentRepository(db).Delete(ctx, "doc1"))
	assert.ErrorIs(t, repo.ReplaceChunks(ctx, "doc1", chunksOf("doc1", "again")), ErrDocumentNotFound)
	assert.ErrorIs(t, repo.UpsertEmbedding(ctx, "doc1", "doc1-c0", []float32{1}), ErrDocumentNotFound)

	rows, err := repo.ListEmbeddings(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, rows)
	n, err := repo.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "existing rows are left for the deleter to clear")
}
