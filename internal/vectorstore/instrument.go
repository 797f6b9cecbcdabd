package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ragd.vectorstore"

// instrumented wraps an Index with a span and Prometheus metrics per call.
type instrumented struct {
	next    Index
	backend string
	tracer  trace.Tracer
	metrics *Metrics
}

// Instrument decorates idx. A nil tracer uses the global provider; nil
// metrics disables Prometheus recording.
func Instrument(idx Index, backend string, tracer trace.Tracer, metrics *Metrics) Index {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &instrumented{next: idx, backend: backend, tracer: tracer, metrics: metrics}
}

func (i *instrumented) start(ctx context.Context, op, collection string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := i.tracer.Start(ctx, "vectorstore."+op)
	span.SetAttributes(attribute.String("backend", i.backend))
	if collection != "" {
		span.SetAttributes(attribute.String("collection", collection))
	}
	span.SetAttributes(attrs...)
	started := time.Now()

	return ctx, func(err error) {
		i.metrics.observe(i.backend, op, time.Since(started).Seconds(), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.End()
	}
}

func (i *instrumented) EnsureCollection(ctx context.Context, spec CollectionSpec) (err error) {
	ctx, done := i.start(ctx, "ensure_collection", spec.Name, attribute.Int("dimension", spec.Dimension))
	defer func() { done(err) }()
	return i.next.EnsureCollection(ctx, spec)
}

func (i *instrumented) ResetCollection(ctx context.Context, spec CollectionSpec) (err error) {
	ctx, done := i.start(ctx, "reset_collection", spec.Name, attribute.Int("dimension", spec.Dimension))
	defer func() { done(err) }()
	return i.next.ResetCollection(ctx, spec)
}

func (i *instrumented) CollectionInfo(ctx context.Context, name string) (info *CollectionInfo, err error) {
	ctx, done := i.start(ctx, "collection_info", name)
	defer func() { done(err) }()
	return i.next.CollectionInfo(ctx, name)
}

func (i *instrumented) Upsert(ctx context.Context, collection string, records []Record) (err error) {
	ctx, done := i.start(ctx, "upsert", collection, attribute.Int("records", len(records)))
	defer func() { done(err) }()
	return i.next.Upsert(ctx, collection, records)
}

func (i *instrumented) Search(ctx context.Context, collection string, vector []float32, k int, filter *Filter) (hits []Hit, err error) {
	ctx, done := i.start(ctx, "search", collection,
		attribute.Int("k", k),
		attribute.Bool("filtered", !filter.IsEmpty()))
	defer func() {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("results_count", len(hits)))
		done(err)
	}()
	return i.next.Search(ctx, collection, vector, k, filter)
}

func (i *instrumented) Delete(ctx context.Context, collection string, filter Filter) (n int, err error) {
	ctx, done := i.start(ctx, "delete", collection, attribute.String("source", filter.Source))
	defer func() {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("deleted", n))
		done(err)
	}()
	return i.next.Delete(ctx, collection, filter)
}

func (i *instrumented) Count(ctx context.Context, collection string, filter *Filter) (n int, err error) {
	ctx, done := i.start(ctx, "count", collection)
	defer func() { done(err) }()
	return i.next.Count(ctx, collection, filter)
}

func (i *instrumented) CountBySource(ctx context.Context, collection string) (counts map[string]int, err error) {
	ctx, done := i.start(ctx, "count_by_source", collection)
	defer func() { done(err) }()
	return i.next.CountBySource(ctx, collection)
}

func (i *instrumented) Health(ctx context.Context) (err error) {
	ctx, done := i.start(ctx, "health", "")
	defer func() { done(err) }()
	return i.next.Health(ctx)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
