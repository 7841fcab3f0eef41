// Package tokencount provides deterministic pre-call token estimation.
//
// It exists for exactly two purposes: a pre-call credit check before a
// debate turn goes out over the wire, and a last-resort fallback when a
// provider's stream completes without reporting usage at all. Provider-
// reported usage is always preferred over this estimator — see
// internal/debate's usage-normalization order. This package deliberately
// does not implement the `len(text)//4` heuristic the original source used
// in its streaming path; that shortcut under- or over-counts badly enough
// on non-English and code-heavy text to be worth an encoder call instead.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is the tiktoken encoding used for every count. Count takes
// no model argument, so counts are not keyed by model family: none of the models this engine
// targets (Claude, Gemini, GPT-4-class, Llama-family local models) ship a
// public tokenizer of their own that tiktoken-go implements, so cl100k_base
// is used everywhere as a deterministic, consistent stand-in — the same
// choice the original source's token_counter.py makes.
const encodingName = "cl100k_base"

// Counter estimates token counts with the cl100k_base encoder, building it
// on first use and caching it for the life of the process. Encoder
// construction does non-trivial work (loading a BPE rank table), so the
// cache is the whole point — a debate with five personalities across two
// rounds should pay that cost once, not ten times.
//
// The cache is a plain mutex-guarded map that only ever holds the one
// cl100k_base entry; there is no per-family handle and no LRU.
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewCounter returns a ready-to-use Counter with an empty encoder cache.
func NewCounter() *Counter {
	return &Counter{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// encoder returns the shared cl100k_base encoder, building and caching it
// on first use.
func (c *Counter) encoder() (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[encodingName]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	c.encoders[encodingName] = enc
	return enc, nil
}

// Count estimates the token count of text. Empty input always returns 0
// without touching the encoder.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	enc, err := c.encoder()
	if err != nil {
		// The encoder table failed to load (corrupt cache, offline
		// install with no bundled ranks). Falling back to a conservative
		// whitespace-token count keeps pre-call checks usable instead of
		// hard-failing a debate over a tokenizer outage, while still
		// avoiding the forbidden len(text)/4 heuristic.
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages sums Count across several texts — used to estimate the
// combined system-prompt + user-message token cost of a turn before it's
// sent.
func (c *Counter) CountMessages(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}
