package xmetrics

import (
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const defaultInstrumentationName = "github.com/omeyang/xlock/pkg/observability/xmetrics"

// defaultBuckets 锁等待与持有时长的桶边界（秒）
var defaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600}

type options struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
	sizer               Sizer
	buckets             []float64
}

// Option 两种监听器共用的选项，不适用的选项被忽略。
type Option func(*options)

// WithInstrumentationName OTel Meter 名称。
func WithInstrumentationName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.instrumentationName = name
		}
	}
}

// WithMeterProvider 默认使用 otel.GetMeterProvider()。
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) {
		if p != nil {
			o.meterProvider = p
		}
	}
}

// WithLockCount 导出当前锁数量的来源；不设置时不注册该指标。
func WithLockCount(s Sizer) Option {
	return func(o *options) { o.sizer = s }
}

// WithBuckets 时长直方图桶边界（秒），须严格递增。
func WithBuckets(b ...float64) Option {
	return func(o *options) { o.buckets = slices.Clone(b) }
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
		buckets:             defaultBuckets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if len(o.buckets) == 0 {
		return o, fmt.Errorf("%w: empty", ErrInvalidBuckets)
	}
	for i := 1; i < len(o.buckets); i++ {
		if o.buckets[i] <= o.buckets[i-1] {
			return o, fmt.Errorf("%w: %v is not strictly increasing", ErrInvalidBuckets, o.buckets)
		}
	}
	return o, nil
}
