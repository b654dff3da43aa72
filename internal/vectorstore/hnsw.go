package vectorstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"

	"notebook-rag/internal/apperrors"
)

const (
	snapshotFile = "records.gob"
	lockFile     = ".lock"

	// Partitions at or below this size are scanned exactly instead of walking the graph.
	exactScanLimit = 256
	// Graph candidates fetched per requested result before exact re-ranking.
	oversample = 4
)

// HNSWConfig configures the embedded index.
type HNSWConfig struct {
	Dir        string
	Dimensions int
	M          int
	EfSearch   int
}

// partition holds the records of one notebook and its graph.
type partition struct {
	graph *hnsw.Graph[uint64]
	keys  []uint64
}

// snapshot is the gob-encoded on-disk form of the index.
type snapshot struct {
	Dimensions int
	Records    []Record
}

// HNSWStore implements Index in-process using coder/hnsw graphs, one per
// notebook. Records are persisted as a gob snapshot written atomically
// after every mutation; memory is only updated once the snapshot is on disk.
type HNSWStore struct {
	mu     sync.RWMutex
	cfg    HNSWConfig
	lock   *flock.Flock
	closed bool

	rows       map[uint64]Record
	unit       map[uint64][]float32 // normalized vectors
	partitions map[string]*partition
	nextKey    uint64
}

// OpenHNSWStore opens or creates an index in cfg.Dir. The directory is held
// under an exclusive file lock until Close. A snapshot written with a
// different dimension is rejected.
func OpenHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index directory %s is in use by another process", cfg.Dir)
	}

	s := &HNSWStore{
		cfg:  cfg,
		lock: lock,
	}

	records, err := s.readSnapshot()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	s.rebuild(records)

	slog.Info("vector index opened", "dir", cfg.Dir, "dimensions", cfg.Dimensions, "records", len(records))
	return s, nil
}

// Dimensions returns the fixed vector dimension of the index.
func (s *HNSWStore) Dimensions() int {
	return s.cfg.Dimensions
}

// Add appends records. The batch is persisted before any of it becomes searchable.
func (s *HNSWStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.cfg.Dimensions); err != nil {
		return apperrors.IndexWriteFailure("invalid records", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.IndexWriteFailure("add", errors.New("store is closed"))
	}

	next := make([]Record, 0, len(s.rows)+len(records))
	next = append(next, s.orderedRows()...)
	for _, r := range records {
		next = append(next, copyRecord(r))
	}
	if err := s.writeSnapshot(next); err != nil {
		return apperrors.IndexWriteFailure("failed to persist records", err)
	}

	for _, r := range next[len(next)-len(records):] {
		s.insert(r)
	}
	return nil
}

// DeleteByAttachment removes every record of the attachment. The affected
// notebook graphs are rebuilt from the remaining records.
func (s *HNSWStore) DeleteByAttachment(ctx context.Context, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.IndexWriteFailure("delete", errors.New("store is closed"))
	}

	all := s.orderedRows()
	keep := make([]Record, 0, len(all))
	for _, r := range all {
		if r.AttachmentID != attachmentID {
			keep = append(keep, r)
		}
	}
	if len(keep) == len(all) {
		return nil
	}

	if err := s.writeSnapshot(keep); err != nil {
		return apperrors.IndexWriteFailure("failed to persist records", err)
	}

	affected := make(map[string]struct{})
	for key, r := range s.rows {
		if r.AttachmentID == attachmentID {
			affected[r.NotebookID] = struct{}{}
			delete(s.rows, key)
			delete(s.unit, key)
		}
	}
	for notebookID := range affected {
		s.rebuildPartition(notebookID)
	}
	return nil
}

// Search returns at most k records of the notebook ordered by exact cosine distance.
func (s *HNSWStore) Search(ctx context.Context, notebookID string, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, apperrors.IndexSearchFailure("invalid search", fmt.Errorf("k must be greater than 0"))
	}
	if len(query) != s.cfg.Dimensions {
		return nil, apperrors.IndexSearchFailure("invalid query", ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, apperrors.IndexSearchFailure("search", errors.New("store is closed"))
	}

	p, ok := s.partitions[notebookID]
	if !ok || len(p.keys) == 0 {
		return []SearchResult{}, nil
	}

	q := normalized(query)

	candidates := p.keys
	if len(p.keys) > exactScanLimit {
		nodes := p.graph.Search(q, k*oversample)
		candidates = make([]uint64, 0, len(nodes))
		for _, node := range nodes {
			candidates = append(candidates, node.Key)
		}
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, key := range candidates {
		r, ok := s.rows[key]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			AttachmentID: r.AttachmentID,
			NotebookID:   r.NotebookID,
			Path:         r.Path,
			Text:         r.Text,
			Distance:     cosineDistance(q, s.unit[key]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// AttachmentIDs returns the distinct attachment IDs that own records.
func (s *HNSWStore) AttachmentIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.rows {
		seen[r.AttachmentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored records.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close releases the directory lock.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.rows = nil
	s.unit = nil
	s.partitions = nil

	return s.lock.Unlock()
}

// rebuild replaces the in-memory state with records, in order.
func (s *HNSWStore) rebuild(records []Record) {
	s.rows = make(map[uint64]Record, len(records))
	s.unit = make(map[uint64][]float32, len(records))
	s.partitions = make(map[string]*partition)
	s.nextKey = 0
	for _, r := range records {
		s.insert(r)
	}
}

// rebuildPartition replaces a notebook graph with one holding only the keys
// still present in rows. Keys are kept, so other partitions are untouched.
func (s *HNSWStore) rebuildPartition(notebookID string) {
	p, ok := s.partitions[notebookID]
	if !ok {
		return
	}

	graph := s.newGraph()
	keys := make([]uint64, 0, len(p.keys))
	for _, key := range p.keys {
		vec, ok := s.unit[key]
		if !ok {
			continue
		}
		graph.Add(hnsw.MakeNode(key, vec))
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		delete(s.partitions, notebookID)
		return
	}
	s.partitions[notebookID] = &partition{graph: graph, keys: keys}
}

// insert adds one record to the maps and its notebook graph.
func (s *HNSWStore) insert(r Record) {
	key := s.nextKey
	s.nextKey++

	p, ok := s.partitions[r.NotebookID]
	if !ok {
		p = &partition{graph: s.newGraph()}
		s.partitions[r.NotebookID] = p
	}

	vec := normalized(r.Vector)
	p.graph.Add(hnsw.MakeNode(key, vec))
	p.keys = append(p.keys, key)

	s.rows[key] = r
	s.unit[key] = vec
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.cfg.M
	graph.EfSearch = s.cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// orderedRows returns the records in insertion order.
func (s *HNSWStore) orderedRows() []Record {
	keys := make([]uint64, 0, len(s.rows))
	for key := range s.rows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		records = append(records, s.rows[key])
	}
	return records
}

// writeSnapshot persists records with a temp file and rename.
func (s *HNSWStore) writeSnapshot(records []Record) error {
	path := filepath.Join(s.cfg.Dir, snapshotFile)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(snapshot{Dimensions: s.cfg.Dimensions, Records: records}); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads the persisted records. A missing snapshot is an empty index.
func (s *HNSWStore) readSnapshot() ([]Record, error) {
	file, err := os.Open(filepath.Join(s.cfg.Dir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close snapshot file", slog.String("error", err.Error()))
		}
	}()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Dimensions != s.cfg.Dimensions {
		return nil, fmt.Errorf("stored index does not match configured model: %w",
			ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: snap.Dimensions})
	}
	return snap.Records, nil
}

func copyRecord(r Record) Record {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	r.Vector = vec
	return r
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sumSquares float64
	for _, val := range out {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// cosineDistance returns 1 - a·b for unit vectors, clamped at zero.
func cosineDistance(a, b []float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	d := float32(1 - dot)
	if d < 0 {
		return 0
	}
	return d
}

var (
	_ Index = (*HNSWStore)(nil)
	_ Index = (*QdrantStore)(nil)
)
