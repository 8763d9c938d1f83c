package xmetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/omeyang/xlock/pkg/context/xowner"
	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

const (
	attrEvent   = "event"
	attrKeyType = "key_type"
	attrNested  = "nested"
	attrReason  = "reason"
	attrHolder  = "holder"
	attrSeconds = "duration_s"
)

// Sizer 提供当前锁数量，*xkeylock.Locker 满足该接口。
type Sizer interface {
	Len() int
}

var _ Sizer = (*xkeylock.Locker)(nil)

// nested 持有者是否同时持有其他锁。两种事件发生时当前锁都在持有栈中。
func nested(ctx context.Context) bool {
	return xowner.From(ctx).Depth() > 1
}

func eventAttrs(ctx context.Context, ev xkeylock.EventType, h *xkeylock.Holder) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrEvent, ev.String()),
		attribute.String(attrKeyType, xkeylock.KeyTypeOf(h.Key())),
		attribute.Bool(attrNested, nested(ctx)),
	}
}

func spanAttrs(h *xkeylock.Holder, d time.Duration) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(attrKeyType, xkeylock.KeyTypeOf(h.Key())),
		attribute.String(attrReason, h.Reason()),
		attribute.String(attrHolder, h.Owner().String()),
		attribute.Float64(attrSeconds, d.Seconds()),
	}
}
