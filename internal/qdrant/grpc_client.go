package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// GRPCClient implements Client using Qdrant's official Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	UseTLS bool
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// DialTimeout bounds the health check run on connect.
	// Default: 5 seconds
	DialTimeout time.Duration

	// RequestTimeout is the timeout for individual requests.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// RetryAttempts is the number of retries for transient failures. Zero
	// disables retries; DefaultClientConfig sets 3.
	RetryAttempts int

	// InitialBackoff is the first retry delay; it doubles on each attempt.
	// Default: 1 second
	InitialBackoff time.Duration

	// Distance is the metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
		InitialBackoff: time.Second,
		Distance:       qdrant.Distance_Cosine,
	}
}

// ClientConfigFrom maps the application config onto a ClientConfig.
func ClientConfigFrom(c config.QdrantConfig) *ClientConfig {
	return &ClientConfig{
		Host:           c.Host,
		Port:           c.Port,
		UseTLS:         c.UseTLS,
		APIKey:         c.APIKey.Value(),
		MaxMessageSize: c.MaxMessageSize,
		DialTimeout:    c.DialTimeout.Duration(),
		RequestTimeout: c.RequestTimeout.Duration(),
		RetryAttempts:  c.RetryAttempts,
		InitialBackoff: c.InitialBackoff.Duration(),
	}
}

// ApplyDefaults sets default values for unset fields. RetryAttempts is left
// alone so that zero can turn retries off.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.Distance == 0 {
		c.Distance = defaults.Distance
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("invalid retry attempts: %d", c.RetryAttempts)
	}
	return nil
}

// NewGRPCClient connects to Qdrant and verifies the server is reachable.
// Configuration problems wrap ragerr.ErrConfiguration; an unreachable server
// wraps ragerr.ErrIndex.
func NewGRPCClient(cfg *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ragerr.ErrConfiguration)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: qdrant: %w", ragerr.ErrConfiguration, err)
	}

	qdrantConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", ragerr.ErrIndex, err)
	}

	c := &GRPCClient{client: client, config: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	logger.Debug(ctx, "connecting to qdrant",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)
	if err := c.Health(ctx); err != nil {
		_ = client.Close()
		logger.Error(ctx, "qdrant health check failed",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.Error(err),
		)
		return nil, err
	}
	return c, nil
}

// Health performs a health check on the Qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return wrapError(fmt.Sprintf("health check %s:%d", c.config.Host, c.config.Port), err)
	}
	return nil
}

// CollectionInfo returns the collection's vector size, point count and
// indexed payload fields.
func (c *GRPCClient) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var out *CollectionInfo
	err := c.retryOperation(ctx, func() error {
		info, err := c.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				out = &CollectionInfo{}
				return nil
			}
			return err
		}
		out = &CollectionInfo{
			Exists:     true,
			VectorSize: info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(),
			Points:     info.GetPointsCount(),
		}
		for field := range info.GetPayloadSchema() {
			out.Indexed = append(out.Indexed, field)
		}
		sort.Strings(out.Indexed)
		return nil
	})
	if err != nil {
		return nil, wrapError("collection info "+name, err)
	}
	return out, nil
}

// CreateCollection creates a collection with the configured distance.
func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	err := c.retryOperation(ctx, func() error {
		return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: c.config.Distance,
			}),
		})
	})
	return wrapError("create collection "+name, err)
}

// DeleteCollection deletes a collection and all its points.
func (c *GRPCClient) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	err := c.retryOperation(ctx, func() error {
		return c.client.DeleteCollection(ctx, name)
	})
	return wrapError("delete collection "+name, err)
}

// CreateFieldIndex creates a payload index. Creating an existing index is a
// no-op on the server.
func (c *GRPCClient) CreateFieldIndex(ctx context.Context, collection, field string, kind IndexKind) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req := &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		Wait:           qdrant.PtrOf(true),
	}
	switch kind {
	case IndexText:
		req.FieldType = qdrant.FieldType_FieldTypeText.Enum()
		req.FieldIndexParams = &qdrant.PayloadIndexParams{
			IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
				TextIndexParams: &qdrant.TextIndexParams{
					Tokenizer: qdrant.TokenizerType_Word,
					Lowercase: qdrant.PtrOf(true),
				},
			},
		}
	default:
		req.FieldType = qdrant.FieldType_FieldTypeKeyword.Enum()
	}

	err := c.retryOperation(ctx, func() error {
		_, err := c.client.CreateFieldIndex(ctx, req)
		return err
	})
	return wrapError(fmt.Sprintf("create index %s.%s", collection, field), err)
}

// Upsert inserts or replaces points and waits for the write to be applied.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		qdrantPoints[i] = convertToQdrantPoint(point)
	}

	err := c.retryOperation(ctx, func() error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrantPoints,
		})
		return err
	})
	return wrapError(fmt.Sprintf("upsert %d points into %s", len(points), collection), err)
}

// Search returns the nearest points with payload and vectors. Search is not
// retried; callers decide. A missing collection returns no points.
func (c *GRPCClient) Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
		Filter:         convertToQdrantFilter(filter),
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil, nil
		}
		return nil, wrapError("search "+collection, err)
	}

	scored := make([]*ScoredPoint, len(results))
	for i, result := range results {
		scored[i] = convertFromQdrantScoredPoint(result)
	}
	return scored, nil
}

// Count returns the exact number of points matching filter.
func (c *GRPCClient) Count(ctx context.Context, collection string, filter *Filter) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var n uint64
	err := c.retryOperation(ctx, func() error {
		var err error
		n, err = c.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Filter:         convertToQdrantFilter(filter),
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, wrapError("count "+collection, err)
	}
	return n, nil
}

// Scroll returns one page of points without vectors and the offset of the
// next page, empty at the end.
func (c *GRPCClient) Scroll(ctx context.Context, collection string, req ScrollRequest) ([]*Point, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	limit := req.Limit
	if limit == 0 {
		limit = 256
	}
	scroll := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         convertToQdrantFilter(req.Filter),
		Limit:          qdrant.PtrOf(limit),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if len(req.Fields) > 0 {
		scroll.WithPayload = qdrant.NewWithPayloadInclude(req.Fields...)
	} else {
		scroll.WithPayload = qdrant.NewWithPayload(false)
	}
	if req.Offset != "" {
		scroll.Offset = qdrant.NewIDUUID(req.Offset)
	}

	var (
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	)
	err := c.retryOperation(ctx, func() error {
		var err error
		points, next, err = c.client.ScrollAndOffset(ctx, scroll)
		return err
	})
	if err != nil {
		return nil, "", wrapError("scroll "+collection, err)
	}

	out := make([]*Point, len(points))
	for i, p := range points {
		out[i] = convertFromQdrantRetrievedPoint(p)
	}
	return out, extractPointID(next), nil
}

// DeleteByFilter removes every point matching filter.
func (c *GRPCClient) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	if filter == nil || len(filter.Must) == 0 {
		return fmt.Errorf("%w: refusing to delete without a filter", ragerr.ErrConfiguration)
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	err := c.retryOperation(ctx, func() error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: convertToQdrantFilter(filter),
				},
			},
		})
		return err
	})
	return wrapError("delete from "+collection, err)
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (c *GRPCClient) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	startTime := time.Now()

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Info(ctx, "operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err
		if !isTransientError(err) {
			return err
		}
		if attempt == c.config.RetryAttempts {
			break
		}

		c.logger.Debug(ctx, "retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.config.RetryAttempts),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	c.logger.Warn(ctx, "operation failed after all retries exhausted",
		zap.Int("total_attempts", c.config.RetryAttempts+1),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)
	return fmt.Errorf("operation failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

// isTransientError checks if an error is transient and should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// wrapError classifies a transport failure as ragerr.ErrIndex, marking
// transient ones retryable.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%w: qdrant %s: %w", ragerr.ErrIndex, op, err)
	if isTransientError(err) {
		return ragerr.Retryable(wrapped)
	}
	return wrapped
}

func convertToQdrantPoint(p *Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = convertToQdrantValue(v)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case *int:
		if val == nil {
			return convertToQdrantValue(nil)
		}
		return convertToQdrantValue(*val)
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      extractPointID(p.Id),
			Vector:  extractVectorOutput(p.Vectors),
			Payload: extractPayload(p.Payload),
		},
		Score: p.Score,
	}
}

func convertFromQdrantRetrievedPoint(p *qdrant.RetrievedPoint) *Point {
	return &Point{
		ID:      extractPointID(p.Id),
		Vector:  extractVectorOutput(p.Vectors),
		Payload: extractPayload(p.Payload),
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
		return vec.GetData()
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func convertToQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Must) == 0 {
		return nil
	}
	filter := &qdrant.Filter{Must: make([]*qdrant.Condition, 0, len(f.Must))}
	for _, cond := range f.Must {
		filter.Must = append(filter.Must, convertToQdrantCondition(cond))
	}
	return filter
}

func convertToQdrantCondition(c Condition) *qdrant.Condition {
	match := &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: c.Keyword}}
	if c.Text != "" {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: c.Text}}
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   c.Field,
				Match: match,
			},
		},
	}
}

var _ Client = (*GRPCClient)(nil)
