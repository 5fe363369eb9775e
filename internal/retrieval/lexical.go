package retrieval

import (
	"sort"
	"strings"
	"unicode"

	"github.com/chatforge/knowledge/internal/domain"
)

// lexicalScore is a term-frequency relevance score: the share of a
// chunk's tokens that match query terms. It ranks the fallback
// candidates; it is never exposed to callers, who see the fixed
// FallbackScore instead.
func lexicalScore(queryTerms []string, content string) float64 {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return 0
	}

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	var matched int
	for _, term := range queryTerms {
		matched += freq[term]
	}
	return float64(matched) / float64(len(tokens))
}

// rankLexical orders candidates by descending lexical score, ties
// broken by chunk id for determinism, and truncates to limit.
func rankLexical(query string, candidates []domain.Chunk, limit int) []domain.Chunk {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		chunk domain.Chunk
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if s := lexicalScore(terms, c.Content); s > 0 {
			ranked = append(ranked, scored{chunk: c, score: s})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].chunk.ID < ranked[j].chunk.ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]domain.Chunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.chunk)
	}
	return out
}

// tokenize lowercases and splits on anything that is not a letter or
// digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
