package xmetrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

const (
	metricEvents          = "xlock.lock.events"
	metricAcquireDuration = "xlock.lock.acquire.duration"
	metricHoldDuration    = "xlock.lock.hold.duration"
	metricLockCount       = "xlock.lock.count"

	spanEventAcquired = "xlock.acquired"
	spanEventReleased = "xlock.released"
)

// OTelListener 把锁事件记录为 OpenTelemetry 指标和 span 事件。
type OTelListener struct {
	events  metric.Int64Counter
	acquire metric.Float64Histogram
	hold    metric.Float64Histogram
	gauge   metric.Registration
}

var _ xkeylock.Listener = (*OTelListener)(nil)

// NewOTelListener 创建监听器。设置了 WithLockCount 时同时注册 xlock.lock.count，
// 不再使用时调用 Close 注销。
func NewOTelListener(opts ...Option) (*OTelListener, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	meter := o.meterProvider.Meter(o.instrumentationName)

	l := &OTelListener{}
	if l.events, err = meter.Int64Counter(metricEvents,
		metric.WithDescription("锁事件次数"), metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateInstrument, metricEvents, err)
	}
	if l.acquire, err = meter.Float64Histogram(metricAcquireDuration,
		metric.WithDescription("获取锁的等待耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(o.buckets...)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateInstrument, metricAcquireDuration, err)
	}
	if l.hold, err = meter.Float64Histogram(metricHoldDuration,
		metric.WithDescription("最外层持有时长"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(o.buckets...)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateInstrument, metricHoldDuration, err)
	}

	if o.sizer != nil {
		sizer := o.sizer
		gauge, err := meter.Int64ObservableGauge(metricLockCount,
			metric.WithDescription("锁表中的 key 数量"), metric.WithUnit("{lock}"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCreateInstrument, metricLockCount, err)
		}
		l.gauge, err = meter.RegisterCallback(func(_ context.Context, ob metric.Observer) error {
			ob.ObserveInt64(gauge, int64(sizer.Len()))
			return nil
		}, gauge)
		if err != nil {
			return nil, fmt.Errorf("%w: %s callback: %w", ErrCreateInstrument, metricLockCount, err)
		}
	}
	return l, nil
}

func (l *OTelListener) OnLock(ctx context.Context, h *xkeylock.Holder, acquire time.Duration) {
	l.record(ctx, xkeylock.EventLock, h, acquire, l.acquire, spanEventAcquired)
}

func (l *OTelListener) OnUnlock(ctx context.Context, h *xkeylock.Holder, held time.Duration) {
	l.record(ctx, xkeylock.EventUnlock, h, held, l.hold, spanEventReleased)
}

func (l *OTelListener) record(ctx context.Context, ev xkeylock.EventType, h *xkeylock.Holder,
	d time.Duration, hist metric.Float64Histogram, spanEvent string) {
	// 请求 ctx 可能已取消，指标仍需记录
	mctx := context.WithoutCancel(ctx)
	attrs := eventAttrs(ctx, ev, h)
	l.events.Add(mctx, 1, metric.WithAttributes(attrs...))
	hist.Record(mctx, d.Seconds(),
		metric.WithAttributes(attribute.String(attrKeyType, xkeylock.KeyTypeOf(h.Key()))))

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(spanEvent, trace.WithAttributes(spanAttrs(h, d)...))
	}
}

// Close 注销 xlock.lock.count 回调，可重复调用。
func (l *OTelListener) Close() error {
	if l.gauge == nil {
		return nil
	}
	err := l.gauge.Unregister()
	l.gauge = nil
	return err
}
