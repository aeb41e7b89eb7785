package pipeline

import (
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultChunkWords   = 700
	DefaultOverlapWords = 120
	topicKeywords       = 5
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "of": {}, "for": {}, "and": {}, "to": {},
	"in": {}, "on": {}, "with": {}, "that": {}, "it": {}, "this": {}, "as": {},
}

// splitWords 按词切分文本，每块 size 个词，相邻两块重叠 overlap 个词。
func splitWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkWords
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(words); {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// topKeywords 返回出现频率最高的 max 个关键词：小写、去掉非单词字符、长度至少 4 且不是停用词。
// 频率相同时先出现的词在前。
func topKeywords(text string, max int) []string {
	freq := make(map[string]int)
	var order []string
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		token := strings.Map(func(r rune) rune {
			if r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
				return r
			}
			return -1
		}, raw)
		if len(token) < 4 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		if freq[token] == 0 {
			order = append(order, token)
		}
		freq[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > max {
		order = order[:max]
	}
	return order
}

// estimateDifficulty 按词数粗略估计阅读难度。
func estimateDifficulty(wordCount int) string {
	switch {
	case wordCount < 500:
		return "easy"
	case wordCount < 2000:
		return "medium"
	default:
		return "hard"
	}
}
