package xmetrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

// PromListener 把锁事件导出为 Prometheus 指标。
type PromListener struct {
	reg     prometheus.Registerer
	events  *prometheus.CounterVec
	hold    *prometheus.HistogramVec
	locks   prometheus.GaugeFunc
	members []prometheus.Collector
}

var _ xkeylock.Listener = (*PromListener)(nil)

// NewPromListener 创建监听器并注册到 reg（nil 时使用 prometheus.DefaultRegisterer）。
// 重复注册同名指标返回 ErrRegister。
func NewPromListener(reg prometheus.Registerer, opts ...Option) (*PromListener, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	l := &PromListener{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xlock_events_total",
			Help: "Lock and unlock events by key type.",
		}, []string{attrEvent, attrKeyType, attrNested}),
		hold: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xlock_hold_duration_seconds",
			Help:    "Outermost lock hold duration.",
			Buckets: o.buckets,
		}, []string{attrKeyType}),
	}
	l.members = []prometheus.Collector{l.events, l.hold}
	if o.sizer != nil {
		sizer := o.sizer
		l.locks = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "xlock_locks",
			Help: "Keys currently in the lock table.",
		}, func() float64 { return float64(sizer.Len()) })
		l.members = append(l.members, l.locks)
	}

	for i, c := range l.members {
		if err := reg.Register(c); err != nil {
			for _, done := range l.members[:i] {
				reg.Unregister(done)
			}
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("%w: already registered", ErrRegister)
			}
			return nil, fmt.Errorf("%w: %w", ErrRegister, err)
		}
	}
	return l, nil
}

func (l *PromListener) OnLock(ctx context.Context, h *xkeylock.Holder, _ time.Duration) {
	l.count(ctx, xkeylock.EventLock, h)
}

func (l *PromListener) OnUnlock(ctx context.Context, h *xkeylock.Holder, held time.Duration) {
	l.count(ctx, xkeylock.EventUnlock, h)
	l.hold.WithLabelValues(xkeylock.KeyTypeOf(h.Key())).Observe(held.Seconds())
}

func (l *PromListener) count(ctx context.Context, ev xkeylock.EventType, h *xkeylock.Holder) {
	l.events.WithLabelValues(ev.String(), xkeylock.KeyTypeOf(h.Key()), strconv.FormatBool(nested(ctx))).Inc()
}

// Close 从注册表注销全部指标。
func (l *PromListener) Close() {
	for _, c := range l.members {
		l.reg.Unregister(c)
	}
}
