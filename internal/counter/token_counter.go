package counter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tiktoken cl100k_base tokens.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex // guards encoding
}

// NewTokenCounter loads the cl100k_base encoding.
func NewTokenCounter() (*TokenCounter, error) {
	slog.Debug("Initializing TokenCounter with cl100k_base encoding")

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cl100k_base encoding: %w", err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

// Count returns the number of tokens in text. Safe for concurrent use.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate returns text cut down to at most max tokens.
func (tc *TokenCounter) Truncate(text string, max int) string {
	if max <= 0 || text == "" {
		return ""
	}

	tc.mu.RLock()
	defer tc.mu.RUnlock()

	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text
	}

	slog.Debug("Truncated text", "unit", "tokens", "originalTokens", len(tokens), "max", max)
	return tc.encoding.Decode(tokens[:max])
}

func (tc *TokenCounter) Name() string {
	return "tokens (cl100k_base)"
}
