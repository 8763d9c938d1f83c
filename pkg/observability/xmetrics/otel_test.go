package xmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestMeterProvider(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func newTestLocker(t *testing.T) *xkeylock.Locker {
	t.Helper()
	l, err := xkeylock.New()
	require.NoError(t, err)
	return l
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func attrValue(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.Emit()
}

func TestNewOTelListener_InvalidBuckets(t *testing.T) {
	_, err := NewOTelListener(WithBuckets())
	require.ErrorIs(t, err, ErrInvalidBuckets)

	_, err = NewOTelListener(WithBuckets(1, 1))
	require.ErrorIs(t, err, ErrInvalidBuckets)
}

func TestOTelListener_RecordsEvents(t *testing.T) {
	mp, reader := newTestMeterProvider(t)
	locker := newTestLocker(t)
	ol, err := NewOTelListener(WithMeterProvider(mp), WithLockCount(locker))
	require.NoError(t, err)
	defer func() { require.NoError(t, ol.Close()) }()
	locker.Listen(ol)

	ctx := context.Background()
	require.NoError(t, locker.Do(ctx, "outer", "test", func(ctx context.Context) error {
		return locker.Do(ctx, 42, "inner", func(context.Context) error { return nil })
	}))

	metrics := collect(t, reader)

	events, ok := metrics[metricEvents].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	type row struct{ event, keyType, nested string }
	got := make(map[row]int64)
	for _, dp := range events.DataPoints {
		r := row{attrValue(dp.Attributes, attrEvent), attrValue(dp.Attributes, attrKeyType), attrValue(dp.Attributes, attrNested)}
		got[r] += dp.Value
	}
	assert.Equal(t, map[row]int64{
		{"lock", "string", "false"}:   1,
		{"unlock", "string", "false"}: 1,
		{"lock", "int", "true"}:       1,
		{"unlock", "int", "true"}:     1,
	}, got)

	hold, ok := metrics[metricHoldDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var holdCount uint64
	for _, dp := range hold.DataPoints {
		holdCount += dp.Count
	}
	assert.Equal(t, uint64(2), holdCount)
	assert.Contains(t, metrics, metricAcquireDuration)

	gauge, ok := metrics[metricLockCount].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Zero(t, gauge.DataPoints[0].Value)
}

func TestOTelListener_GaugeReflectsHeldLocks(t *testing.T) {
	mp, reader := newTestMeterProvider(t)
	locker := newTestLocker(t)
	ol, err := NewOTelListener(WithMeterProvider(mp), WithLockCount(locker))
	require.NoError(t, err)
	defer func() { _ = ol.Close() }()

	lk, err := locker.Acquire(context.Background(), "k", "gauge")
	require.NoError(t, err)
	gauge := collect(t, reader)[metricLockCount].Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
	require.NoError(t, lk.Release())
}

func TestOTelListener_AddsSpanEvents(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	mp, _ := newTestMeterProvider(t)

	locker := newTestLocker(t)
	ol, err := NewOTelListener(WithMeterProvider(mp))
	require.NoError(t, err)
	locker.Listen(ol)

	ctx, span := tp.Tracer("test").Start(context.Background(), "work")
	require.NoError(t, locker.Do(ctx, "k", "traced", func(context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	}))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	var names []string
	for _, ev := range spans[0].Events {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{spanEventAcquired, spanEventReleased}, names)
	assert.Contains(t, spans[0].Events[0].Attributes, attribute.String(attrReason, "traced"))
}

func TestOTelListener_CloseIdempotent(t *testing.T) {
	mp, _ := newTestMeterProvider(t)
	ol, err := NewOTelListener(WithMeterProvider(mp), WithLockCount(newTestLocker(t)))
	require.NoError(t, err)
	require.NoError(t, ol.Close())
	require.NoError(t, ol.Close())
}
