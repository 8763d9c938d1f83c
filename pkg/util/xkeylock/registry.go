package xkeylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

type listenerEntry struct {
	id       uint64
	name     string
	listener Listener
	cb       *gobreaker.CircuitBreaker[struct{}]
}

// listenerRegistry 写时复制：通知只读取当前快照，注册/注销不会阻塞通知。
type listenerRegistry struct {
	mu      sync.Mutex // 串行化写者
	seq     uint64
	entries atomic.Pointer[[]*listenerEntry]

	logger      xlog.Logger
	failures    uint32
	openTimeout time.Duration
}

func newListenerRegistry(logger xlog.Logger, failures uint32, openTimeout time.Duration) *listenerRegistry {
	r := &listenerRegistry{logger: logger, failures: failures, openTimeout: openTimeout}
	r.entries.Store(&[]*listenerEntry{})
	return r
}

func (r *listenerRegistry) add(l Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &listenerEntry{
		id:       r.seq,
		name:     fmt.Sprintf("%T#%d", l, r.seq),
		listener: l,
	}
	failures := r.failures
	e.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    e.name,
		Timeout: r.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn(context.Background(), "lock listener breaker state changed",
				slog.String("listener", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	next := append(slices.Clone(*r.entries.Load()), e)
	r.entries.Store(&next)

	id := e.id
	return func() { r.removeWhere(func(e *listenerEntry) bool { return e.id == id }) }
}

// remove 注销与 l 相等的监听器。不可比较的监听器（如 ListenerFunc）永远不匹配。
func (r *listenerRegistry) remove(l Listener) bool {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return false
	}
	return r.removeWhere(func(e *listenerEntry) bool {
		return reflect.TypeOf(e.listener).Comparable() && e.listener == l
	})
}

func (r *listenerRegistry) removeWhere(match func(*listenerEntry) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.entries.Load()
	idx := slices.IndexFunc(cur, match)
	if idx < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), idx, idx+1)
	r.entries.Store(&next)
	return true
}

func (r *listenerRegistry) len() int {
	return len(*r.entries.Load())
}

// notify 每个监听器在独立的故障边界内执行：panic 被恢复为错误，
// 连续失败触发熔断后跳过该监听器。
func (r *listenerRegistry) notify(ctx context.Context, ev EventType, h *Holder, d time.Duration) {
	for _, e := range *r.entries.Load() {
		_, err := e.cb.Execute(func() (struct{}, error) {
			return struct{}{}, invokeListener(ctx, e.listener, ev, h, d)
		})
		switch {
		case err == nil:
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			r.logger.Debug(ctx, "lock listener skipped", slog.String("listener", e.name), xlog.Err(err))
		default:
			r.logger.Error(ctx, "lock listener failed",
				slog.String("listener", e.name), slog.String("event", ev.String()),
				xlog.LockKey(h.key), xlog.Err(err))
		}
	}
}

func invokeListener(ctx context.Context, l Listener, ev EventType, h *Holder, d time.Duration) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, p)
		}
	}()
	if ev == EventLock {
		l.OnLock(ctx, h, d)
	} else {
		l.OnUnlock(ctx, h, d)
	}
	return nil
}

// ListenerStatus 监听器及其熔断状态。
type ListenerStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
}

func (r *listenerRegistry) status() []ListenerStatus {
	entries := *r.entries.Load()
	out := make([]ListenerStatus, 0, len(entries))
	for _, e := range entries {
		c := e.cb.Counts()
		out = append(out, ListenerStatus{
			Name:                e.name,
			State:               e.cb.State().String(),
			ConsecutiveFailures: c.ConsecutiveFailures,
			TotalFailures:       c.TotalFailures,
		})
	}
	return out
}
