package agent

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts prompt and response tokens. All supported providers
// are approximated with the GPT-4 encoding, which is close enough for usage
// accounting and truncation decisions.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter with the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in the text. On any tokenizer failure
// it falls back to a character-based estimate (4 chars per token).
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// WithinLimit reports whether text fits in the given token budget.
func (tc *TokenCounter) WithinLimit(text string, limit int) bool {
	return tc.Count(text) <= limit
}
