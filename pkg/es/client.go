// Package es 提供了基于 Elasticsearch 的分块全文索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const chunkMapping = `{
	"mappings": {
		"properties": {
			"chunk_id":    { "type": "keyword" },
			"doc_id":      { "type": "keyword" },
			"chunk_index": { "type": "integer" },
			"text":        { "type": "text", "analyzer": "standard" }
		}
	}
}`

// ChunkDocument 是写入 Elasticsearch 的分块文档。
type ChunkDocument struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Hit 是一条检索命中，Score 为 ES 的 _score（越大越相关）。
type Hit struct {
	ChunkDocument
	Score float64
}

// ChunkIndex 封装了对单个索引的读写。
type ChunkIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewChunkIndex 创建客户端。
func NewChunkIndex(esCfg config.ElasticsearchConfig) (*ChunkIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ChunkIndex{client: client, indexName: esCfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (x *ChunkIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.indexName}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", x.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = x.client.Indices.Create(
		x.indexName,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(chunkMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", x.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}

	log.Infof("索引 '%s' 创建成功", x.indexName)
	return nil
}

// IndexChunks 通过 bulk 接口写入一个文档的全部分块，并立即刷新。
func (x *ChunkIndex) IndexChunks(ctx context.Context, chunks []ChunkDocument) error {
	if len(chunks) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, c := range chunks {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": x.indexName, "_id": c.ChunkID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(c); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "true"}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index returned error: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		return errors.New("bulk index reported item errors")
	}
	return nil
}

// DeleteByDocID 删除某个文档的全部分块。
func (x *ChunkIndex) DeleteByDocID(ctx context.Context, docID string) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		},
	}); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}
	res, err := x.client.DeleteByQuery(
		[]string{x.indexName},
		&buf,
		x.client.DeleteByQuery.WithContext(ctx),
		x.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete by query returned error: %s", res.String())
	}
	return nil
}

// Search 对 text 字段执行 match 查询（所有词都要命中），docID 非空时按文档过滤。
func (x *ChunkIndex) Search(ctx context.Context, query, docID string, limit int) ([]Hit, error) {
	boolQuery := map[string]interface{}{
		"must": map[string]interface{}{
			"match": map[string]interface{}{
				"text": map[string]interface{}{"query": query, "operator": "and"},
			},
		},
	}
	if docID != "" {
		boolQuery["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"doc_id": docID},
		}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  limit,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.indexName),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s %s", res.Status(), string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source ChunkDocument `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{ChunkDocument: h.Source, Score: h.Score})
	}
	return hits, nil
}
