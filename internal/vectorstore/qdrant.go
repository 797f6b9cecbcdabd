package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/qdrant"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// scrollPageSize is the page size used when walking a collection.
const scrollPageSize = 256

// QdrantIndex implements Index on a Qdrant server.
type QdrantIndex struct {
	client qdrant.Client
	logger *logging.Logger
}

// NewQdrantIndex wraps a Qdrant client.
func NewQdrantIndex(client qdrant.Client, logger *logging.Logger) (*QdrantIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client is required", ragerr.ErrConfiguration)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantIndex{client: client, logger: logger}, nil
}

// EnsureCollection creates the collection and its payload indexes if needed.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	info, err := q.client.CollectionInfo(ctx, spec.Name)
	if err != nil {
		return err
	}

	if !info.Exists {
		if err := q.client.CreateCollection(ctx, spec.Name, uint64(spec.Dimension)); err != nil {
			return err
		}
		q.logger.Info(ctx, "collection created",
			zap.String("collection", spec.Name),
			zap.Int("dimension", spec.Dimension))
		return q.ensureIndexes(ctx, spec.Name, nil)
	}

	if int(info.VectorSize) != spec.Dimension {
		return fmt.Errorf("%w: %s has %d dimensions, configured %d",
			ErrDimensionMismatch, spec.Name, info.VectorSize, spec.Dimension)
	}
	return q.ensureIndexes(ctx, spec.Name, info.Indexed)
}

func (q *QdrantIndex) ensureIndexes(ctx context.Context, name string, existing []string) error {
	indexes := []struct {
		field string
		kind  qdrant.IndexKind
	}{
		{FieldText, qdrant.IndexText},
		{FieldSource, qdrant.IndexKeyword},
	}
	for _, idx := range indexes {
		if slices.Contains(existing, idx.field) {
			continue
		}
		if err := q.client.CreateFieldIndex(ctx, name, idx.field, idx.kind); err != nil {
			return err
		}
		q.logger.Debug(ctx, "payload index created",
			zap.String("collection", name),
			zap.String("field", idx.field))
	}
	return nil
}

// ResetCollection drops the collection if present and recreates it empty.
func (q *QdrantIndex) ResetCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	info, err := q.client.CollectionInfo(ctx, spec.Name)
	if err != nil {
		return err
	}
	if info.Exists {
		if err := q.client.DeleteCollection(ctx, spec.Name); err != nil {
			return err
		}
		q.logger.Info(ctx, "collection deleted",
			zap.String("collection", spec.Name),
			zap.Uint64("points", info.Points))
	}
	return q.EnsureCollection(ctx, spec)
}

// CollectionInfo describes the collection. A missing collection is not an
// error; Exists is false.
func (q *QdrantIndex) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	info, err := q.client.CollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:      name,
		Exists:    info.Exists,
		Dimension: int(info.VectorSize),
		Points:    int(info.Points),
		Indexed:   info.Indexed,
	}, nil
}

// Upsert writes records, replacing any with the same ID.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.Point, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ragerr.ErrIndex, i)
		}
		points[i] = &qdrant.Point{ID: r.ID, Vector: r.Vector, Payload: payloadToMap(r.Payload)}
	}
	return q.client.Upsert(ctx, collection, points)
}

// Search returns the k nearest records with their vectors. It makes exactly
// one request; a missing collection yields no hits.
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ragerr.ErrConfiguration, k)
	}
	points, err := q.client.Search(ctx, collection, vector, uint64(k), toQdrantFilter(filter))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			ID:      p.ID,
			Score:   p.Score,
			Vector:  p.Vector,
			Payload: payloadFromMap(p.Payload),
		})
	}
	return hits, nil
}

// Delete removes matching records. The returned count is taken just before
// the delete and is exact unless writes race with it.
func (q *QdrantIndex) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: delete requires a filter", ragerr.ErrConfiguration)
	}
	n, err := q.Count(ctx, collection, &filter)
	if err != nil || n == 0 {
		return 0, err
	}
	if err := q.client.DeleteByFilter(ctx, collection, toQdrantFilter(&filter)); err != nil {
		return 0, err
	}
	q.logger.Info(ctx, "records deleted",
		zap.String("collection", collection),
		zap.String("source", filter.Source),
		zap.Int("count", n))
	return n, nil
}

// Count returns the exact number of matching records. A missing collection
// counts zero.
func (q *QdrantIndex) Count(ctx context.Context, collection string, filter *Filter) (int, error) {
	info, err := q.client.CollectionInfo(ctx, collection)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, nil
	}
	n, err := q.client.Count(ctx, collection, toQdrantFilter(filter))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountBySource scrolls the collection reading only the source field.
func (q *QdrantIndex) CountBySource(ctx context.Context, collection string) (map[string]int, error) {
	info, err := q.client.CollectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	if !info.Exists {
		return counts, nil
	}

	req := qdrant.ScrollRequest{Fields: []string{FieldSource}, Limit: scrollPageSize}
	for {
		points, next, err := q.client.Scroll(ctx, collection, req)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			source, _ := p.Payload[FieldSource].(string)
			counts[source]++
		}
		if next == "" || len(points) == 0 {
			return counts, nil
		}
		req.Offset = next
	}
}

// Health checks the server connection.
func (q *QdrantIndex) Health(ctx context.Context) error {
	return q.client.Health(ctx)
}

// Close closes the client connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	out := &qdrant.Filter{}
	if f.Source != "" {
		out.Must = append(out.Must, qdrant.Condition{Field: FieldSource, Keyword: f.Source})
	}
	if text := strings.TrimSpace(f.MatchText); text != "" {
		out.Must = append(out.Must, qdrant.Condition{Field: FieldText, Text: text})
	}
	if len(out.Must) == 0 {
		return nil
	}
	return out
}

func payloadToMap(p Payload) map[string]interface{} {
	return map[string]interface{}{
		FieldText:       p.Text,
		FieldSource:     p.Source,
		FieldPage:       p.Page,
		FieldChunkIndex: p.ChunkIndex,
		FieldCreatedAt:  p.CreatedAt,
	}
}

func payloadFromMap(m map[string]interface{}) Payload {
	p := Payload{}
	p.Text, _ = m[FieldText].(string)
	p.Source, _ = m[FieldSource].(string)
	if page, ok := asInt(m[FieldPage]); ok {
		v := int(page)
		p.Page = &v
	}
	if idx, ok := asInt(m[FieldChunkIndex]); ok {
		p.ChunkIndex = int(idx)
	}
	if ts, ok := asInt(m[FieldCreatedAt]); ok {
		p.CreatedAt = ts
	}
	return p
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

var _ Index = (*QdrantIndex)(nil)
