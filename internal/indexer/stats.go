package indexer

import (
	"math"
	"sort"
	"sync"
	"unicode/utf8"
)

const (
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
	// maxTrackedChunks bounds the token samples kept for percentile stats.
	maxTrackedChunks = 10000
)

// IngestionStats summarizes the jobs run by an orchestrator since start.
type IngestionStats struct {
	// JobsSubmitted is the number of jobs started.
	JobsSubmitted int `json:"jobs_submitted"`
	// JobsRunning is the number of jobs not yet finished.
	JobsRunning int `json:"jobs_running"`
	// JobsSucceeded is the number of attachments that reached Ready.
	JobsSucceeded int `json:"jobs_succeeded"`
	// JobsFailed is the number of attachments that ended in Error.
	JobsFailed int `json:"jobs_failed"`
	// DocsWith0Chunks is the number of documents that produced no chunks.
	DocsWith0Chunks int `json:"docs_with_0_chunks"`
	// ChunksEmbedded is the number of chunks written to the vector index.
	ChunksEmbedded int `json:"chunks_embedded"`
	// ChunkTokenStats describes the estimated token counts of recent chunks.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// statsRecorder accumulates IngestionStats.
type statsRecorder struct {
	mu     sync.Mutex
	stats  IngestionStats
	tokens []int
}

func (r *statsRecorder) submitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.JobsSubmitted++
	r.stats.JobsRunning++
}

func (r *statsRecorder) succeeded(chunks []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.JobsRunning--
	r.stats.JobsSucceeded++
	r.stats.ChunksEmbedded += len(chunks)
	for _, c := range chunks {
		r.tokens = append(r.tokens, estimateTokens(c))
	}
	if over := len(r.tokens) - maxTrackedChunks; over > 0 {
		r.tokens = append(r.tokens[:0], r.tokens[over:]...)
	}
}

func (r *statsRecorder) failed(noChunks bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.JobsRunning--
	r.stats.JobsFailed++
	if noChunks {
		r.stats.DocsWith0Chunks++
	}
}

func (r *statsRecorder) snapshot() IngestionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.ChunkerVersion = ChunkerVersion
	s.ChunkTokenStats = computeTokenStats(r.tokens)
	return s
}

// estimateTokens estimates tokens from rune count, with a minimum of 1.
func estimateTokens(text string) int {
	n := int(math.Round(float64(utf8.RuneCountInString(text)) / TokensPerRune))
	if n < 1 {
		return 1
	}
	return n
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	// Sort for percentile calculation
	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
