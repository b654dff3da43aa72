package rag

import (
	"strings"
	"unicode"
)

const (
	lexicalLengthScale = float32(10.0)
	maxLexicalScore    = float32(0.4)
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// lexicalScore measures how many question keywords a chunk contains,
// normalized by chunk length and clamped to [0, maxLexicalScore].
func lexicalScore(query, chunkText string) float32 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenize(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}

	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += chunkFreq[token]
	}

	score := (float32(rawMatches) / (1 + float32(len(chunkTokens)))) * lexicalLengthScale
	return min(score, maxLexicalScore)
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	clean := builder.String()
	tokens := strings.Fields(clean)
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
