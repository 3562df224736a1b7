package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrProviderFailed  = errors.New("embedding provider failed")
	ErrAllModelsFailed = errors.New("all embedding models failed")
	ErrBatchTooLarge   = errors.New("batch size exceeds limit")
)

// MaxBatchSize bounds one provider call.
const MaxBatchSize = 100

// Embedding is a vector embedding with provenance metadata.
type Embedding struct {
	Vector    []float32
	Dimension int
	Model     string
	Hash      string // cache key: sha256(model + ":" + normalized text)
	Quantized bool
	Fallback  bool // produced by a non-primary model
	CacheHit  bool
}

// Stats counts engine activity since construction.
type Stats struct {
	CacheHits     int64
	CacheMisses   int64
	ProviderCalls int64
	Fallbacks     int64
}

// ComputeHash derives the deterministic cache key for a (model, text) pair.
// Text is normalized (leading/trailing whitespace trimmed) before hashing so
// formatting noise does not defeat the cache.
func ComputeHash(model, text string) string {
	h := sha256.Sum256([]byte(model + ":" + normalize(text)))
	return hex.EncodeToString(h[:])
}

func normalize(text string) string {
	start := 0
	end := len(text)
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return text[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ValidateTexts validates a batch request.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrEmptyText, i)
		}
	}
	return nil
}
