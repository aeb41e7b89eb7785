package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *ChunkIndex {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	idx, err := NewChunkIndex(config.ElasticsearchConfig{Addresses: server.URL, IndexName: "chunks"})
	require.NoError(t, err)
	return idx
}

func TestSearchBuildsFilteredQuery(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chunks/_search", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
		assert.Contains(t, boolQuery, "filter")
		match := boolQuery["must"].(map[string]interface{})["match"].(map[string]interface{})["text"].(map[string]interface{})
		assert.Equal(t, "newton", match["query"])
		assert.Equal(t, "and", match["operator"])
		assert.EqualValues(t, 5, body["size"])

		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_score": 3.2, "_source": {"chunk_id":"c1","doc_id":"d1","chunk_index":0,"text":"Newton's first law"}},
			{"_score": 1.1, "_source": {"chunk_id":"c2","doc_id":"d1","chunk_index":1,"text":"Newton's second law"}}
		]}}`)
	})

	hits, err := idx.Search(context.Background(), "newton", "d1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, 3.2, hits[0].Score)
}

func TestSearchError(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad query"}`)
	})

	_, err := idx.Search(context.Background(), "x", "", 5)
	assert.Error(t, err)
}

func TestIndexChunksWritesBulkBody(t *testing.T) {
	var lines []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		lines = strings.Split(strings.TrimSpace(string(raw)), "\n")
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	})

	err := idx.IndexChunks(context.Background(), []ChunkDocument{
		{ChunkID: "c1", DocID: "d1", ChunkIndex: 0, Text: "a"},
		{ChunkID: "c2", DocID: "d1", ChunkIndex: 1, Text: "b"},
	})
	require.NoError(t, err)
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"c1"`)
}

func TestIndexChunksItemErrors(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[]}`)
	})

	err := idx.IndexChunks(context.Background(), []ChunkDocument{{ChunkID: "c1"}})
	assert.Error(t, err)
}

func TestDeleteByDocIDEncodesJSON(t *testing.T) {
	docID := "d\u00e9\u2028\"x"
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chunks/_delete_by_query", r.URL.Path)
		var body struct {
			Query struct {
				Term map[string]string `json:"term"`
			} `json:"query"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, docID, body.Query.Term["doc_id"])
		_, _ = io.WriteString(w, `{"deleted":1}`)
	})

	require.NoError(t, idx.DeleteByDocID(context.Background(), docID))
}
