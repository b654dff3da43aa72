package indexer

import "strings"

// ChunkerVersion identifies the chunking rules. Change it when they change.
const ChunkerVersion = "paragraph-v1"

// paragraphSeparator is the boundary between chunks.
const paragraphSeparator = "\n\n"

// Chunk splits raw text on blank-line paragraph boundaries. Spans that are
// empty or whitespace-only are dropped and the rest keep source order. There
// is no size cap and no overlap, so one long paragraph is one chunk.
// Line endings are normalized to "\n" and each chunk is trimmed of
// surrounding whitespace.
func Chunk(raw string) []string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")

	var chunks []string
	for _, span := range strings.Split(text, paragraphSeparator) {
		span = strings.TrimSpace(span)
		if span == "" {
			continue
		}
		chunks = append(chunks, span)
	}
	return chunks
}
