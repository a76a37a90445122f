package util

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		want          string
	}{
		{"short input unchanged", "hello", 10, false, "hello"},
		{"hard cut", "abcdefghij", 6, false, "abc..."},
		{"word boundary", "intro to distributed systems", 15, true, "intro to..."},
		{"tiny limit", "abcdef", 2, false, ".."},
		{"zero limit", "abcdef", 0, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.maxLen, tt.preserveWords)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), max(tt.maxLen, 0))
		})
	}
}

func TestTruncateString_UTF8(t *testing.T) {
	got := TruncateString("查询中文数据库中的用户信息", 8, false)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 8, utf8.RuneCountInString(got))
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "Intro to X is about Y", FirstSentence(" Intro to X is about Y. More text."))
	assert.Equal(t, "no period here", FirstSentence("no period here"))
	assert.Equal(t, "", FirstSentence(""))
}

func TestDedupeFold(t *testing.T) {
	got := DedupeFold([]string{"Go", "go ", "", "Rust", "Zig", "Odin"}, 3)
	assert.Equal(t, []string{"Go", "Rust", "Zig"}, got)
	assert.Equal(t, []string{"a", "b"}, DedupeFold([]string{"a", "A", "b"}, 0))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("please explain this", "why", "explain"))
	assert.False(t, ContainsAny("hello", "", "bye"))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("abcdef", 3))
	assert.Equal(t, "ab", Prefix("ab", 3))
}
