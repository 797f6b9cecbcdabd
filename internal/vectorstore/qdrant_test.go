package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/qdrant"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// fakeQdrant is an in-memory qdrant.Client that records calls.
type fakeQdrant struct {
	info     qdrant.CollectionInfo
	created  []uint64
	deleted  int
	indexes  map[string]qdrant.IndexKind
	upserted []*qdrant.Point
	results  []*qdrant.ScoredPoint
	count    uint64
	pages    [][]*qdrant.Point
	filters  []*qdrant.Filter
	searches int

	infoCalls int
	searchErr error
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{indexes: make(map[string]qdrant.IndexKind)}
}

func (f *fakeQdrant) CollectionInfo(context.Context, string) (*qdrant.CollectionInfo, error) {
	f.infoCalls++
	info := f.info
	return &info, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, _ string, size uint64) error {
	f.created = append(f.created, size)
	f.info = qdrant.CollectionInfo{Exists: true, VectorSize: size}
	return nil
}

func (f *fakeQdrant) DeleteCollection(context.Context, string) error {
	f.deleted++
	f.info = qdrant.CollectionInfo{}
	return nil
}

func (f *fakeQdrant) CreateFieldIndex(_ context.Context, _ string, field string, kind qdrant.IndexKind) error {
	f.indexes[field] = kind
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, _ string, points []*qdrant.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeQdrant) Search(_ context.Context, _ string, _ []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error) {
	f.searches++
	f.filters = append(f.filters, filter)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if int(limit) < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeQdrant) Count(_ context.Context, _ string, filter *qdrant.Filter) (uint64, error) {
	f.filters = append(f.filters, filter)
	return f.count, nil
}

func (f *fakeQdrant) Scroll(_ context.Context, _ string, req qdrant.ScrollRequest) ([]*qdrant.Point, string, error) {
	page := 0
	if req.Offset != "" {
		fmt.Sscanf(req.Offset, "page-%d", &page)
	}
	if page >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if page+1 < len(f.pages) {
		next = fmt.Sprintf("page-%d", page+1)
	}
	return f.pages[page], next, nil
}

func (f *fakeQdrant) DeleteByFilter(_ context.Context, _ string, filter *qdrant.Filter) error {
	f.filters = append(f.filters, filter)
	return nil
}

func (f *fakeQdrant) Health(context.Context) error { return nil }
func (f *fakeQdrant) Close() error                 { return nil }

func newTestQdrantIndex(t *testing.T, fake *fakeQdrant) *QdrantIndex {
	t.Helper()
	idx, err := NewQdrantIndex(fake, nil)
	require.NoError(t, err)
	return idx
}

func TestQdrantIndex_EnsureCollection_Creates(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestQdrantIndex(t, fake)

	require.NoError(t, idx.EnsureCollection(context.Background(), testSpec(384)))
	assert.Equal(t, []uint64{384}, fake.created)
	assert.Equal(t, map[string]qdrant.IndexKind{
		FieldText:   qdrant.IndexText,
		FieldSource: qdrant.IndexKeyword,
	}, fake.indexes)
}

func TestQdrantIndex_EnsureCollection_Existing(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 384, Indexed: []string{FieldText}}
	idx := newTestQdrantIndex(t, fake)

	require.NoError(t, idx.EnsureCollection(context.Background(), testSpec(384)))
	assert.Empty(t, fake.created)
	assert.Equal(t, map[string]qdrant.IndexKind{FieldSource: qdrant.IndexKeyword}, fake.indexes)

	err := idx.EnsureCollection(context.Background(), testSpec(768))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestQdrantIndex_Reset(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 384, Points: 10}
	idx := newTestQdrantIndex(t, fake)

	require.NoError(t, idx.ResetCollection(context.Background(), testSpec(384)))
	assert.Equal(t, 1, fake.deleted)
	assert.Equal(t, []uint64{384}, fake.created)
	assert.Len(t, fake.indexes, 2)
}

func TestQdrantIndex_Upsert(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestQdrantIndex(t, fake)

	r := record("76a03218-a023-543e-9e20-6d27951bd85f", "guia.pdf", 2, "texto", 1, 0, 0)
	require.NoError(t, idx.Upsert(context.Background(), testCollection, []Record{r}))
	require.Len(t, fake.upserted, 1)

	p := fake.upserted[0]
	assert.Equal(t, r.ID, p.ID)
	assert.Equal(t, "texto", p.Payload[FieldText])
	assert.Equal(t, 2, p.Payload[FieldChunkIndex])
	assert.Equal(t, r.Payload.Page, p.Payload[FieldPage])

	assert.NoError(t, idx.Upsert(context.Background(), testCollection, nil))
	assert.ErrorIs(t, idx.Upsert(context.Background(), testCollection, []Record{{}}), ragerr.ErrIndex)
}

func TestQdrantIndex_Search(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 3, Points: 2}
	fake.results = []*qdrant.ScoredPoint{
		{Point: qdrant.Point{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{
			FieldText: "uno", FieldSource: "a.pdf", FieldPage: int64(4), FieldChunkIndex: int64(1), FieldCreatedAt: int64(1700000000),
		}}, Score: 0.9},
		{Point: qdrant.Point{ID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{
			FieldText: "dos", FieldSource: "a.pdf", FieldPage: nil, FieldChunkIndex: int64(2),
		}}, Score: 0.5},
	}
	idx := newTestQdrantIndex(t, fake)

	hits, err := idx.Search(context.Background(), testCollection, []float32{1, 0, 0}, 5,
		&Filter{MatchText: "  animación Madrid "})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, float32(0.9), hits[0].Score)
	assert.Equal(t, []float32{1, 0, 0}, hits[0].Vector)
	require.NotNil(t, hits[0].Payload.Page)
	assert.Equal(t, 4, *hits[0].Payload.Page)
	assert.Equal(t, 1, hits[0].Payload.ChunkIndex)
	assert.Nil(t, hits[1].Payload.Page)

	require.Len(t, fake.filters, 1)
	require.Len(t, fake.filters[0].Must, 1)
	assert.Equal(t, qdrant.Condition{Field: FieldText, Text: "animación Madrid"}, fake.filters[0].Must[0])
}

func TestQdrantIndex_SearchSingleRequest(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestQdrantIndex(t, fake)

	hits, err := idx.Search(context.Background(), testCollection, []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, fake.searches)
	assert.Zero(t, fake.infoCalls)
}

func TestQdrantIndex_SearchErrorNotRetried(t *testing.T) {
	fake := newFakeQdrant()
	fake.searchErr = ragerr.Retryable(fmt.Errorf("%w: qdrant search: unavailable", ragerr.ErrIndex))
	idx := newTestQdrantIndex(t, fake)

	_, err := idx.Search(context.Background(), testCollection, []float32{1}, 5, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrIndex)
	assert.Equal(t, 1, fake.searches)
	assert.Zero(t, fake.infoCalls)
}

func TestQdrantIndex_Delete(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 3, Points: 9}
	fake.count = 4
	idx := newTestQdrantIndex(t, fake)

	n, err := idx.Delete(context.Background(), testCollection, Filter{Source: "guia.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.Len(t, fake.filters, 2, "count then delete")
	want := qdrant.Condition{Field: FieldSource, Keyword: "guia.pdf"}
	assert.Equal(t, want, fake.filters[1].Must[0])

	_, err = idx.Delete(context.Background(), testCollection, Filter{})
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestQdrantIndex_DeleteNothingMatched(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 3}
	idx := newTestQdrantIndex(t, fake)

	n, err := idx.Delete(context.Background(), testCollection, Filter{Source: "x"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fake.filters, 1, "no delete issued")
}

func TestQdrantIndex_CountBySource(t *testing.T) {
	fake := newFakeQdrant()
	fake.info = qdrant.CollectionInfo{Exists: true, VectorSize: 3}
	pt := func(source string) *qdrant.Point {
		return &qdrant.Point{Payload: map[string]interface{}{FieldSource: source}}
	}
	fake.pages = [][]*qdrant.Point{
		{pt("a.pdf"), pt("a.pdf")},
		{pt("b.pdf"), pt("a.pdf")},
	}
	idx := newTestQdrantIndex(t, fake)

	counts, err := idx.CountBySource(context.Background(), testCollection)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.pdf": 3, "b.pdf": 1}, counts)
}

func TestQdrantIndex_CountMissingCollection(t *testing.T) {
	idx := newTestQdrantIndex(t, newFakeQdrant())
	n, err := idx.Count(context.Background(), testCollection, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewQdrantIndex_RequiresClient(t *testing.T) {
	_, err := NewQdrantIndex(nil, nil)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}

func TestToQdrantFilter(t *testing.T) {
	assert.Nil(t, toQdrantFilter(nil))
	assert.Nil(t, toQdrantFilter(&Filter{MatchText: "   "}))

	f := toQdrantFilter(&Filter{Source: "a.pdf", MatchText: "Mezquita"})
	require.NotNil(t, f)
	assert.Equal(t, []qdrant.Condition{
		{Field: FieldSource, Keyword: "a.pdf"},
		{Field: FieldText, Text: "Mezquita"},
	}, f.Must)
}
