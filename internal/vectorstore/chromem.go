package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// manifestFile records collection dimensions next to the chromem data, since
// chromem keeps collection metadata private.
const manifestFile = "ragd_manifest.json"

// ChromemConfig configures the embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything in
	// memory. A leading "~" expands to the home directory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Concurrency bounds parallel document inserts. Zero means 1.
	Concurrency int
}

// ChromemIndex implements Index with chromem-go.
//
// chromem has no payload indexes. Source filters use its metadata "where"
// clause, and MatchText is evaluated on the candidates with NormalizeText.
type ChromemIndex struct {
	db     *chromem.DB
	path   string
	cfg    ChromemConfig
	logger *logging.Logger

	// dims maps collection name to vector dimension.
	dims sync.Map
	// mu serializes manifest writes.
	mu sync.Mutex
}

// NewChromemIndex opens an in-memory or persistent chromem database.
func NewChromemIndex(cfg ChromemConfig, logger *logging.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	idx := &ChromemIndex{cfg: cfg, logger: logger}
	if cfg.Path == "" {
		idx.db = chromem.NewDB()
		return idx, nil
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: expanding chromem path: %w", ragerr.ErrConfiguration, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %w", ragerr.ErrIndex, path, err)
	}
	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB at %s: %w", ragerr.ErrIndex, path, err)
	}
	idx.db = db
	idx.path = path

	if err := idx.loadManifest(); err != nil {
		return nil, err
	}
	logger.Debug(context.Background(), "chromem index opened",
		zap.String("path", path),
		zap.Bool("compress", cfg.Compress))
	return idx, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedding is installed on every collection. ragd always supplies vectors,
// so chromem must never embed on its own.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem embedding is disabled; vectors are supplied by ragd")
}

func (c *ChromemIndex) collection(name string) *chromem.Collection {
	return c.db.GetCollection(name, noEmbedding)
}

// EnsureCollection creates the collection if absent and records its
// dimension.
func (c *ChromemIndex) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	if coll := c.collection(spec.Name); coll != nil {
		dim, known := c.dimension(spec.Name)
		if !known {
			if err := probeDimension(ctx, coll, spec.Dimension); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrDimensionMismatch, spec.Name, err)
			}
			return c.setDimension(spec.Name, spec.Dimension)
		}
		if dim != spec.Dimension {
			return fmt.Errorf("%w: %s has %d dimensions, configured %d",
				ErrDimensionMismatch, spec.Name, dim, spec.Dimension)
		}
		return nil
	}

	if _, err := c.db.CreateCollection(spec.Name, nil, noEmbedding); err != nil {
		return fmt.Errorf("%w: creating collection %s: %w", ragerr.ErrIndex, spec.Name, err)
	}
	c.logger.Info(ctx, "collection created",
		zap.String("collection", spec.Name),
		zap.Int("dimension", spec.Dimension))
	return c.setDimension(spec.Name, spec.Dimension)
}

// probeDimension checks a non-empty collection accepts vectors of dim by
// querying with a unit vector. chromem rejects queries whose length differs
// from the stored embeddings.
func probeDimension(ctx context.Context, coll *chromem.Collection, dim int) error {
	if coll.Count() == 0 {
		return nil
	}
	_, err := coll.QueryEmbedding(ctx, unitVector(dim), 1, nil, nil)
	return err
}

func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}

// ResetCollection drops and recreates the collection.
func (c *ChromemIndex) ResetCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if c.collection(spec.Name) != nil {
		if err := c.db.DeleteCollection(spec.Name); err != nil {
			return fmt.Errorf("%w: deleting collection %s: %w", ragerr.ErrIndex, spec.Name, err)
		}
		c.logger.Info(ctx, "collection deleted", zap.String("collection", spec.Name))
	}
	c.dims.Delete(spec.Name)
	return c.EnsureCollection(ctx, spec)
}

// CollectionInfo describes the collection.
func (c *ChromemIndex) CollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	coll := c.collection(name)
	if coll == nil {
		return &CollectionInfo{Name: name}, nil
	}
	dim, _ := c.dimension(name)
	return &CollectionInfo{
		Name:      name,
		Exists:    true,
		Dimension: dim,
		Points:    coll.Count(),
		Indexed:   []string{FieldSource, FieldText},
	}, nil
}

// Upsert adds records. chromem replaces documents with an existing ID.
func (c *ChromemIndex) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	coll := c.collection(collection)
	if coll == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	dim, known := c.dimension(collection)

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ragerr.ErrIndex, i)
		}
		if known && len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d dimensions, collection has %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  payloadToMetadata(r.Payload),
			Embedding: r.Vector,
			Content:   r.Payload.Text,
		}
	}

	if err := coll.AddDocuments(ctx, docs, c.cfg.Concurrency); err != nil {
		return fmt.Errorf("%w: adding %d documents to %s: %w", ragerr.ErrIndex, len(docs), collection, err)
	}
	return nil
}

// Search returns up to k nearest records. With MatchText set the whole
// candidate set is ranked and filtered before truncation.
func (c *ChromemIndex) Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ragerr.ErrConfiguration, k)
	}
	coll := c.collection(collection)
	if coll == nil {
		return nil, nil
	}
	count := coll.Count()
	if count == 0 {
		return nil, nil
	}

	n := min(k, count)
	if filter != nil && strings.TrimSpace(filter.MatchText) != "" {
		n = count
	}
	hits, err := c.query(ctx, coll, vector, n, filter)
	if err != nil {
		return nil, err
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// query runs QueryEmbedding and applies the source where clause and the
// MatchText containment check.
func (c *ChromemIndex) query(ctx context.Context, coll *chromem.Collection, vector []float32, n int, filter *Filter) ([]Hit, error) {
	var where map[string]string
	if filter != nil && filter.Source != "" {
		where = map[string]string{FieldSource: filter.Source}
	}

	results, err := coll.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %w", ragerr.ErrIndex, coll.Name, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := payloadFromMetadata(r.Metadata, r.Content)
		if !filter.matches(payload) {
			continue
		}
		hits = append(hits, Hit{
			ID:      r.ID,
			Score:   r.Similarity,
			Vector:  r.Embedding,
			Payload: payload,
		})
	}
	return hits, nil
}

// scan returns every record matching filter.
func (c *ChromemIndex) scan(ctx context.Context, name string, filter *Filter) ([]Hit, error) {
	coll := c.collection(name)
	if coll == nil || coll.Count() == 0 {
		return nil, nil
	}
	dim, known := c.dimension(name)
	if !known {
		return nil, fmt.Errorf("%w: dimension of %s is unknown; ensure the collection first", ragerr.ErrIndex, name)
	}
	return c.query(ctx, coll, unitVector(dim), coll.Count(), filter)
}

// Delete removes matching records and returns how many matched.
func (c *ChromemIndex) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("%w: delete requires a filter", ragerr.ErrConfiguration)
	}
	hits, err := c.scan(ctx, collection, &filter)
	if err != nil || len(hits) == 0 {
		return 0, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	if err := c.collection(collection).Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("%w: deleting from %s: %w", ragerr.ErrIndex, collection, err)
	}
	c.logger.Info(ctx, "records deleted",
		zap.String("collection", collection),
		zap.String("source", filter.Source),
		zap.Int("count", len(ids)))
	return len(ids), nil
}

// Count returns the number of matching records.
func (c *ChromemIndex) Count(ctx context.Context, collection string, filter *Filter) (int, error) {
	coll := c.collection(collection)
	if coll == nil {
		return 0, nil
	}
	if filter.IsEmpty() {
		return coll.Count(), nil
	}
	hits, err := c.scan(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// CountBySource tallies records per source.
func (c *ChromemIndex) CountBySource(ctx context.Context, collection string) (map[string]int, error) {
	hits, err := c.scan(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, h := range hits {
		counts[h.Payload.Source]++
	}
	return counts, nil
}

// Health always succeeds for the embedded store.
func (c *ChromemIndex) Health(context.Context) error { return nil }

// Close is a no-op; persistent writes are flushed on every insert.
func (c *ChromemIndex) Close() error { return nil }

func (c *ChromemIndex) dimension(name string) (int, bool) {
	v, ok := c.dims.Load(name)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

func (c *ChromemIndex) setDimension(name string, dim int) error {
	c.dims.Store(name, dim)
	return c.saveManifest()
}

type manifest struct {
	Dimensions map[string]int `json:"dimensions"`
}

func (c *ChromemIndex) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(c.path, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading manifest: %w", ragerr.ErrIndex, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: parsing manifest: %w", ragerr.ErrIndex, err)
	}
	for name, dim := range m.Dimensions {
		c.dims.Store(name, dim)
	}
	return nil
}

func (c *ChromemIndex) saveManifest() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := manifest{Dimensions: make(map[string]int)}
	c.dims.Range(func(k, v any) bool {
		m.Dimensions[k.(string)] = v.(int)
		return true
	})
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding manifest: %w", ragerr.ErrIndex, err)
	}
	tmp := filepath.Join(c.path, manifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing manifest: %w", ragerr.ErrIndex, err)
	}
	if err := os.Rename(tmp, filepath.Join(c.path, manifestFile)); err != nil {
		return fmt.Errorf("%w: writing manifest: %w", ragerr.ErrIndex, err)
	}
	return nil
}

func payloadToMetadata(p Payload) map[string]string {
	m := map[string]string{
		FieldSource:     p.Source,
		FieldChunkIndex: strconv.Itoa(p.ChunkIndex),
		FieldCreatedAt:  strconv.FormatInt(p.CreatedAt, 10),
	}
	if p.Page != nil {
		m[FieldPage] = strconv.Itoa(*p.Page)
	}
	return m
}

func payloadFromMetadata(m map[string]string, content string) Payload {
	p := Payload{Text: content, Source: m[FieldSource]}
	if v, err := strconv.Atoi(m[FieldPage]); err == nil {
		p.Page = &v
	}
	if v, err := strconv.Atoi(m[FieldChunkIndex]); err == nil {
		p.ChunkIndex = v
	}
	if v, err := strconv.ParseInt(m[FieldCreatedAt], 10, 64); err == nil {
		p.CreatedAt = v
	}
	return p
}

var _ Index = (*ChromemIndex)(nil)
