// Package tokenizer abstracts the token counting step of metadata
// extraction.  The pipeline treats the counter as a black box; the default
// implementation is the cl100k_base BPE used by the acquisition-side token
// counter.
package tokenizer

import (
	"github.com/weaviate/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used for token counts.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts the tokens in a decoded text blob.
type Tokenizer interface {
	Count(text string) int
}

// Tiktoken is the production Tokenizer, backed by a tiktoken BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken constructs a Tiktoken for the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.  Special-token sequences
// occurring in source files are encoded as ordinary text rather than
// rejected.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Estimator is a deterministic, dependency-free Tokenizer which approximates
// counts by a fixed bytes-per-token ratio.  Useful in tests and in
// environments where the BPE vocabularies are unavailable.
type Estimator struct {
	BytesPerToken int
}

// Count approximates the token count of text.
func (e Estimator) Count(text string) int {
	ratio := e.BytesPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return (len(text) + ratio - 1) / ratio
}
