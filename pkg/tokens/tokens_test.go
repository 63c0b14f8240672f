package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{"çççç", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.text), tt.text)
	}
}

func TestCounterFunc(t *testing.T) {
	words := CounterFunc(func(s string) int { return len(strings.Fields(s)) })
	assert.Equal(t, 3, words.Count("one two three"))
}

func TestNewCounter_NeverNil(t *testing.T) {
	// Loading ranks may need network access; either way a counter is returned.
	c := NewCounter(DefaultEncoding)
	assert.NotNil(t, c)
	assert.Positive(t, c.Count("hello world"))
}
