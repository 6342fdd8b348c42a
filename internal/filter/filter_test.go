package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"Hello, world!", 2},
		{"don't stop", 3},
		{"snake_case counts once", 3},
		{"Chapter 12: 1818", 3},
		{"Ça va? Très bien — merci.", 5},
		{"Война и мир", 3},
		{"--- *** ...", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountWords(tt.text), "CountWords(%q)", tt.text)
	}
}

func TestAcceptBoundary(t *testing.T) {
	t.Parallel()

	const minWords = 50
	f := Filter{MinWords: minWords}

	words, ok := f.Accept(strings.Repeat("word ", minWords-1))
	assert.Equal(t, minWords-1, words)
	assert.False(t, ok)

	words, ok = f.Accept(strings.Repeat("word ", minWords))
	assert.Equal(t, minWords, words)
	assert.True(t, ok)
}
