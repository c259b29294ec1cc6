// Package tokenizer estimates token counts for usage accounting when a
// provider does not report them.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens with the cl100k_base encoding. When the encoding
// cannot be loaded (offline environments) it degrades to a bytes/4 estimate
// rather than failing.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	return e.enc
}

// Count returns the token count of one text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

// CountAll sums the token counts of texts.
func (e *Estimator) CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += e.Count(t)
	}
	return total
}
