// Package filter holds the acceptance criterion applied to extracted text.
package filter

import "regexp"

// wordPattern matches runs of letters, digits and underscores in any script.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// CountWords returns the number of word tokens in text.
func CountWords(text string) int {
	return len(wordPattern.FindAllStringIndex(text, -1))
}

// Filter accepts texts with at least MinWords tokens.
type Filter struct {
	MinWords int
}

// Accept reports the word count and whether it meets the minimum.
func (f Filter) Accept(text string) (int, bool) {
	words := CountWords(text)
	return words, words >= f.MinWords
}
