package service

import (
	"regexp"
	"strings"
)

// Mood 是角色根据回复内容呈现的情绪。
type Mood string

const (
	MoodExcited     Mood = "excited"
	MoodHappy       Mood = "happy"
	MoodEncouraging Mood = "encouraging"
	MoodSad         Mood = "sad"
	MoodNeutral     Mood = "neutral"
)

// 按顺序匹配，先命中者生效。按整词匹配，"incorrect" 不会命中 "correct"。
var moodRules = []struct {
	mood    Mood
	pattern *regexp.Regexp
}{
	{MoodExcited, regexp.MustCompile(`\b(great|excellent|awesome|perfect)\b`)},
	{MoodHappy, regexp.MustCompile(`\b(good|correct|nice)\b`)},
	{MoodEncouraging, regexp.MustCompile(`\b(try|improve|almost|close)\b`)},
	{MoodSad, regexp.MustCompile(`\b(incorrect|wrong|not quite)\b`)},
}

// MoodFromText 根据回复文本推断情绪。
func MoodFromText(text string) Mood {
	lower := strings.ToLower(text)
	for _, rule := range moodRules {
		if rule.pattern.MatchString(lower) {
			return rule.mood
		}
	}
	return MoodNeutral
}
