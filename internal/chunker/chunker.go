// Package chunker splits raw document text into ordered, bounded-size
// chunks. It is pure: no I/O, no state, deterministic for a fixed
// input and configuration.
//
// Three strategies are supported:
//
//   - fixed: cut every ChunkSize characters
//   - recursive: prefer paragraph, then sentence, then character
//     boundaries, packing the largest units that fit
//   - semantic: group whole sentences until the size budget is hit,
//     never splitting a sentence
//
// Overlap characters from the end of each chunk are repeated at the
// start of the next chunk to preserve context across cuts.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/chatforge/knowledge/internal/domain"
)

// Config controls how text is split.
type Config struct {
	Strategy  domain.ChunkStrategy
	ChunkSize int // maximum chunk length in characters
	Overlap   int // characters repeated from the previous chunk, < ChunkSize
}

// Chunk is one ordered slice of the input text.
type Chunk struct {
	Content       string
	OrderIndex    int // 0-based, contiguous
	CharCount     int
	TokenEstimate int
}

// Validate checks the configuration. Overlap must leave room for new
// content in every chunk, otherwise splitting would never advance.
func (c Config) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: unknown chunk strategy %q", domain.ErrConfig, c.Strategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfig, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfig, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrConfig, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Split divides text into chunks per the configuration.
//
// Guarantees:
//   - order indices are exactly 0..n-1 with no gaps
//   - empty text yields zero chunks (not an error)
//   - text shorter than ChunkSize yields exactly one chunk
//   - every chunk is at most ChunkSize characters, except when a single
//     semantic unit (one giant sentence) inherently exceeds it — that
//     unit is kept whole rather than corrupted mid-token
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= cfg.ChunkSize {
		return []Chunk{makeChunk(text, 0)}, nil
	}

	var contents []string
	switch cfg.Strategy {
	case domain.StrategyFixed:
		contents = splitFixed(runes, cfg.ChunkSize, cfg.Overlap)
	case domain.StrategyRecursive:
		contents = packUnits(recursiveUnits(text, cfg.ChunkSize-cfg.Overlap), cfg.ChunkSize, cfg.Overlap)
	case domain.StrategySemantic:
		contents = packUnits(splitSentences(text), cfg.ChunkSize, cfg.Overlap)
	}

	chunks := make([]Chunk, 0, len(contents))
	for i, content := range contents {
		chunks = append(chunks, makeChunk(content, i))
	}
	return chunks, nil
}

func makeChunk(content string, index int) Chunk {
	chars := len([]rune(content))
	return Chunk{
		Content:       content,
		OrderIndex:    index,
		CharCount:     chars,
		TokenEstimate: estimateTokens(chars),
	}
}

// estimateTokens approximates the token count of a text. Four
// characters per token is the usual rule of thumb for English prose.
func estimateTokens(chars int) int {
	return (chars + 3) / 4
}

// splitFixed cuts windows of size chars, each starting overlap chars
// before the previous window's end.
func splitFixed(runes []rune, size, overlap int) []string {
	stride := size - overlap
	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// recursiveUnits breaks text into the largest units that fit in budget:
// paragraphs where possible, sentences inside oversized paragraphs,
// fixed character runs inside oversized sentences. Separators stay
// attached to the preceding unit so that no characters are lost.
func recursiveUnits(text string, budget int) []string {
	var units []string
	for _, para := range splitAfter(text, "\n\n") {
		if len([]rune(para)) <= budget {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len([]rune(sent)) <= budget {
				units = append(units, sent)
				continue
			}
			// One run-on sentence longer than the budget: fall back to
			// character cuts so the chunk bound still holds.
			sr := []rune(sent)
			for start := 0; start < len(sr); start += budget {
				end := min(start+budget, len(sr))
				units = append(units, string(sr[start:end]))
			}
		}
	}
	return units
}

// packUnits greedily fills chunks with whole units. The first chunk may
// use the full size; later chunks reserve overlap characters for the
// carried prefix, so their total length still respects size. A single
// unit larger than the budget becomes its own chunk, kept whole.
func packUnits(units []string, size, overlap int) []string {
	var out []string
	var current strings.Builder
	currentLen := 0

	budget := func() int {
		if len(out) == 0 {
			return size
		}
		return size - overlap
	}

	flush := func() {
		if currentLen == 0 {
			return
		}
		content := current.String()
		if len(out) > 0 && overlap > 0 {
			content = tail(out[len(out)-1], overlap) + content
		}
		out = append(out, content)
		current.Reset()
		currentLen = 0
	}

	for _, unit := range units {
		ulen := len([]rune(unit))
		if currentLen > 0 && currentLen+ulen > budget() {
			flush()
		}
		current.WriteString(unit)
		currentLen += ulen
	}
	flush()
	return out
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// splitAfter is strings.SplitAfter minus the trailing empty element
// that appears when the text ends with the separator.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// splitSentences splits text after sentence-ending punctuation,
// attaching the trailing whitespace to the finished sentence so that
// concatenating the parts reproduces the input exactly.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	i := 0
	for i < len(runes) {
		if isSentenceEnd(runes[i]) {
			i++
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			sentences = append(sentences, string(runes[start:i]))
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
