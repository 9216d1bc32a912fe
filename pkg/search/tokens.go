package search

import (
	"strings"
	"unicode"
)

// TokenCounter estimates how many model tokens a text costs.
type TokenCounter interface {
	CountTokens(text string) int
}

// SimpleTokenCounter approximates token counts from word counts.
// It is model independent, so budgets are approximate.
type SimpleTokenCounter struct{}

// NewSimpleTokenCounter creates a new simple token counter.
func NewSimpleTokenCounter() *SimpleTokenCounter {
	return &SimpleTokenCounter{}
}

// CountTokens splits on whitespace and punctuation; English averages ~1.3 tokens a word.
func (SimpleTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return int(float64(len(words)) * 1.3)
}
