package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoodFromText(t *testing.T) {
	cases := []struct {
		text string
		want Mood
	}{
		{"Great job, that is PERFECT!", MoodExcited},
		{"That's correct.", MoodHappy},
		{"Good, but excellent would be better", MoodExcited},
		{"Almost there, try again", MoodEncouraging},
		{"That answer is incorrect.", MoodSad},
		{"Not quite what the notes say.", MoodSad},
		{"Newton's second law relates force and acceleration.", MoodNeutral},
		{"", MoodNeutral},
		{"The trying part is over", MoodNeutral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MoodFromText(tc.text), tc.text)
	}
}
