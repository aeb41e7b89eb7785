package model

import (
	"encoding/json"
	"fmt"
)

// Source 标识一条检索结果的来源，只有三种取值。
type Source int

const (
	SourceKeyword Source = iota + 1
	SourceSemantic
	SourceDocument
)

func (s Source) String() string {
	switch s {
	case SourceKeyword:
		return "keyword"
	case SourceSemantic:
		return "semantic"
	case SourceDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ParseSource 是 String 的逆操作。
func ParseSource(s string) (Source, error) {
	switch s {
	case "keyword":
		return SourceKeyword, nil
	case "semantic":
		return SourceSemantic, nil
	case "document":
		return SourceDocument, nil
	default:
		return 0, fmt.Errorf("未知的检索来源: %q", s)
	}
}

func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSource(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SearchResult 是一次检索产生的临时结果，不落库。
// Score 越大越相关；融合前不同来源的分数量级不可比较。
type SearchResult struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Source  Source  `json:"source"`
}
