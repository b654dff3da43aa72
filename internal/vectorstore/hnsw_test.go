package vectorstore

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook-rag/internal/apperrors"
)

func openTestStore(t *testing.T, dir string, dim int) *HNSWStore {
	t.Helper()
	s, err := OpenHNSWStore(HNSWConfig{Dir: dir, Dimensions: dim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(att, nb, text string, vec ...float32) Record {
	return Record{AttachmentID: att, NotebookID: nb, Path: "/docs/" + att + ".txt", Text: text, Vector: vec}
}

func TestHNSWStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 3)

	r := rec("att-1", "nb-1", "mitochondria", 0.2, 0.9, 0.1)
	require.NoError(t, s.Add(ctx, []Record{r, rec("att-1", "nb-1", "other", 1, 0, 0)}))

	results, err := s.Search(ctx, "nb-1", r.Vector, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "mitochondria", results[0].Text)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)
	assert.Equal(t, "/docs/att-1.txt", results[0].Path)
}

func TestHNSWStore_SearchRespectsK(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 4)

	rng := rand.New(rand.NewSource(7))
	var records []Record
	for i := 0; i < 20; i++ {
		records = append(records, rec("att", "nb", fmt.Sprintf("chunk %d", i),
			rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()))
	}
	require.NoError(t, s.Add(ctx, records))

	for _, k := range []int{1, 5, 20, 50} {
		results, err := s.Search(ctx, "nb", []float32{1, 1, 1, 1}, k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance, "results must be ordered by distance")
		}
		for _, r := range results {
			assert.Equal(t, "nb", r.NotebookID)
		}
	}
}

func TestHNSWStore_NotebookIsolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 3)

	query := []float32{1, 0, 0}
	require.NoError(t, s.Add(ctx, []Record{
		rec("att-a", "nb-a", "far but mine", 0, 1, 0),
		rec("att-b", "nb-b", "identical but foreign", 1, 0, 0),
	}))

	results, err := s.Search(ctx, "nb-a", query, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "att-a", results[0].AttachmentID)

	results, err = s.Search(ctx, "nb-missing", query, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_GraphPathLargePartition(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 8)

	rng := rand.New(rand.NewSource(42))
	records := make([]Record, 0, exactScanLimit+100)
	for i := 0; i < exactScanLimit+100; i++ {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		records = append(records, rec(fmt.Sprintf("att-%d", i%10), "nb", fmt.Sprintf("chunk %d", i), vec...))
	}
	require.NoError(t, s.Add(ctx, records))

	target := records[123]
	results, err := s.Search(ctx, "nb", target.Vector, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	assert.Equal(t, target.Text, results[0].Text)
	assert.InDelta(t, 0, results[0].Distance, 1e-4)
}

func TestHNSWStore_DeleteByAttachmentIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 2)

	require.NoError(t, s.Add(ctx, []Record{
		rec("att-1", "nb", "one", 1, 0),
		rec("att-1", "nb", "two", 0.9, 0.1),
		rec("att-2", "nb", "three", 0, 1),
	}))

	require.NoError(t, s.DeleteByAttachment(ctx, "att-1"))
	first, err := s.Search(ctx, "nb", []float32{1, 0}, 10)
	require.NoError(t, err)

	require.NoError(t, s.DeleteByAttachment(ctx, "att-1"))
	second, err := s.Search(ctx, "nb", []float32{1, 0}, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	assert.Equal(t, "att-2", second[0].AttachmentID)

	ids, err := s.AttachmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"att-2"}, ids)

	require.NoError(t, s.DeleteByAttachment(ctx, "never-existed"))
}

func TestHNSWStore_DeleteRebuildsOnlyAffectedNotebook(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir, 2)

	require.NoError(t, s.Add(ctx, []Record{
		rec("att-a1", "nb-a", "a one", 1, 0),
		rec("att-a2", "nb-a", "a two", 0.8, 0.2),
		rec("att-b1", "nb-b", "b one", 0, 1),
		rec("att-c1", "nb-c", "c one", 0.5, 0.5),
	}))
	untouched := s.partitions["nb-b"]

	require.NoError(t, s.DeleteByAttachment(ctx, "att-a1"))
	assert.Same(t, untouched, s.partitions["nb-b"])
	require.Len(t, s.partitions["nb-a"].keys, 1)

	results, err := s.Search(ctx, "nb-a", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "att-a2", results[0].AttachmentID)

	require.NoError(t, s.DeleteByAttachment(ctx, "att-c1"))
	_, ok := s.partitions["nb-c"]
	assert.False(t, ok, "empty partition should be dropped")

	// New records get fresh keys after a partial delete.
	require.NoError(t, s.Add(ctx, []Record{rec("att-a3", "nb-a", "a three", 0.9, 0.1)}))
	results, err = s.Search(ctx, "nb-a", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 3, s.Count())

	require.NoError(t, s.Close())
	reopened := openTestStore(t, dir, 2)
	assert.Equal(t, 3, reopened.Count())
}

func TestHNSWStore_AddRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 2)

	err := s.Add(ctx, []Record{
		rec("att", "nb", "ok", 1, 0),
		rec("att", "nb", "bad", 1, 0, 0),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)
	assert.Equal(t, 0, s.Count())
}

func TestHNSWStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenHNSWStore(HNSWConfig{Dir: dir, Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []Record{rec("att", "nb", "persisted", 0, 1)}))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir, 2)
	results, err := reopened.Search(ctx, "nb", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Text)
}

func TestHNSWStore_DimensionMismatchOnOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenHNSWStore(HNSWConfig{Dir: dir, Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []Record{rec("att", "nb", "x", 0, 1)}))
	require.NoError(t, s.Close())

	_, err = OpenHNSWStore(HNSWConfig{Dir: dir, Dimensions: 3})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestHNSWStore_DirectoryLock(t *testing.T) {
	dir := t.TempDir()
	_ = openTestStore(t, dir, 2)

	_, err := OpenHNSWStore(HNSWConfig{Dir: dir, Dimensions: 2})
	assert.Error(t, err)
}

func TestHNSWStore_SearchValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir(), 2)

	_, err := s.Search(ctx, "nb", []float32{1, 0}, 0)
	assert.ErrorIs(t, err, apperrors.ErrIndexSearch)

	_, err = s.Search(ctx, "nb", []float32{1}, 3)
	assert.ErrorIs(t, err, apperrors.ErrIndexSearch)
}

func TestHNSWStore_ClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenHNSWStore(HNSWConfig{Dir: t.TempDir(), Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Add(ctx, []Record{rec("a", "n", "x", 1, 0)}), apperrors.ErrIndexWrite)
	_, err = s.Search(ctx, "n", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, apperrors.ErrIndexSearch)
}
