package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// StaticModel generates embeddings with feature hashing of words and
// character trigrams. It needs no network or model download and is
// deterministic, at the cost of semantic quality.
type StaticModel struct {
	dims int
}

// NewStaticModel creates a static model producing vectors of the given size.
func NewStaticModel(dims int) *StaticModel {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticModel{dims: dims}
}

// Name returns the model identifier.
func (m *StaticModel) Name() string {
	return "static"
}

// Dimensions returns the embedding dimension.
func (m *StaticModel) Dimensions() int {
	return m.dims
}

// EmbedBatch generates embeddings for multiple texts.
func (m *StaticModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = m.embed(text)
	}
	return results, nil
}

func (m *StaticModel) embed(text string) []float32 {
	vector := make([]float32, m.dims)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector
	}

	for _, token := range tokenize(trimmed) {
		vector[hashToIndex(token, m.dims)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vector[hashToIndex(ngram, m.dims)] += ngramWeight
	}

	return normalizeVector(vector)
}

// tokenize splits text into lower-cased words of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeForNgrams keeps lower-cased letters and digits only.
func normalizeForNgrams(text string) []rune {
	var result []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result = append(result, r)
		}
	}
	return result
}

// extractNgrams extracts n-rune sliding windows.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
