package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
)

const scrollPageSize = 256

// QdrantStore implements Index using a Qdrant collection.
// Every point carries its notebook and attachment IDs as keyword-indexed payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
// The collection is not touched until EnsureCollection is called.
func NewQdrantStore(urlStr, collection string, dim int) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		dim:        dim,
	}, nil
}

// grpcAddress derives the gRPC host and port from a Qdrant HTTP URL.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	return host, port, nil
}

// Dimensions returns the fixed vector dimension of the collection.
func (s *QdrantStore) Dimensions() int {
	return s.dim
}

// Add upserts the whole batch in one request and waits until it is applied.
func (s *QdrantStore) Add(ctx context.Context, records []Record) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.dim); err != nil {
		return apperrors.IndexWriteFailure("invalid records", err)
	}

	points := toPoints(records)
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(points), "error", err)
		return apperrors.IndexWriteFailure("failed to upsert points", err)
	}

	logger.InfoContext(ctx, "upserted points", "collection", s.collection, "count", len(points))
	return nil
}

// toPoints converts records to Qdrant points with fresh UUIDs.
// The chunk payload keeps the position of each record within its batch.
func toPoints(records []Record) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.New().String()),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				FieldAttachmentID: r.AttachmentID,
				FieldNotebookID:   r.NotebookID,
				FieldPath:         r.Path,
				FieldText:         r.Text,
				FieldChunk:        i,
			}),
		})
	}
	return points
}

// DeleteByAttachment removes every point whose attachment_id matches.
func (s *QdrantStore) DeleteByAttachment(ctx context.Context, attachmentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if attachmentID == "" {
		return nil
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(FieldAttachmentID, attachmentID)},
		}),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", s.collection, "attachment_id", attachmentID, "error", err)
		return apperrors.IndexWriteFailure("failed to delete points", err)
	}

	logger.InfoContext(ctx, "deleted points", "collection", s.collection, "attachment_id", attachmentID)
	return nil
}

// Search performs a similarity search restricted to one notebook.
func (s *QdrantStore) Search(ctx context.Context, notebookID string, query []float32, k int) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, apperrors.IndexSearchFailure("invalid search", fmt.Errorf("k must be greater than 0"))
	}
	if len(query) != s.dim {
		return nil, apperrors.IndexSearchFailure("invalid query", ErrDimensionMismatch{Expected: s.dim, Got: len(query)})
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(FieldNotebookID, notebookID)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "k", k, "error", err)
		return nil, apperrors.IndexSearchFailure("failed to search points", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		results = append(results, resultFromPayload(convertPayloadToMap(point.Payload), point.Score))
	}

	logger.InfoContext(ctx, "search completed", "collection", s.collection, "notebook_id", notebookID, "k", k, "results", len(results))
	return results, nil
}

// resultFromPayload builds a search result from a point payload.
// Qdrant reports cosine similarity, which is converted to distance.
func resultFromPayload(meta map[string]any, score float32) SearchResult {
	str := func(key string) string {
		v, _ := meta[key].(string)
		return v
	}
	return SearchResult{
		AttachmentID: str(FieldAttachmentID),
		NotebookID:   str(FieldNotebookID),
		Path:         str(FieldPath),
		Text:         str(FieldText),
		Distance:     1 - score,
	}
}

// AttachmentIDs scrolls the collection and returns the distinct attachment IDs.
func (s *QdrantStore) AttachmentIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	limit := uint32(scrollPageSize)
	var offset *qdrant.PointId

	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(FieldAttachmentID),
		})
		if err != nil {
			return nil, apperrors.IndexSearchFailure("failed to scroll points", err)
		}

		// The offset point is included at the start of the next page.
		start := 0
		if offset != nil && len(points) > 0 && points[0].GetId().GetUuid() == offset.GetUuid() {
			start = 1
		}
		for _, point := range points[start:] {
			if id, ok := convertPayloadToMap(point.Payload)[FieldAttachmentID].(string); ok && id != "" {
				seen[id] = struct{}{}
			}
		}

		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection creates the collection with cosine distance and keyword
// payload indexes if it does not exist. An existing collection whose vector
// size differs from the configured dimension is an error.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", s.collection, "vector_size", s.dim)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := s.ensurePayloadIndexes(ctx); err != nil {
			return err
		}
		logger.InfoContext(ctx, "collection created", "collection", s.collection, "vector_size", s.dim)
		return nil
	}

	// Collection exists, validate vector size
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	actualSize := collectionVectorSize(info)
	if actualSize == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if actualSize != s.dim {
		return fmt.Errorf("collection vector size mismatch: %w", ErrDimensionMismatch{Expected: s.dim, Got: actualSize})
	}

	if err := s.ensurePayloadIndexes(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", s.dim)
	return nil
}

// ensurePayloadIndexes creates keyword indexes on the scoping fields.
// Creating an index that already exists is accepted by Qdrant.
func (s *QdrantStore) ensurePayloadIndexes(ctx context.Context) error {
	wait := true
	for _, field := range []string{FieldNotebookID, FieldAttachmentID} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create payload index on %s: %w", field, err)
		}
	}
	return nil
}

// collectionVectorSize extracts the vector size from collection info, or 0.
func collectionVectorSize(info *qdrant.CollectionInfo) int {
	if info == nil || info.Config == nil || info.Config.Params == nil {
		return 0
	}
	vectorsConfig := info.Config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return 0
	}
	params := vectorsConfig.GetParams()
	if params == nil {
		return 0
	}
	return int(params.Size)
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
