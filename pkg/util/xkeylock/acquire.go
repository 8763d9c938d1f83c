package xkeylock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/omeyang/xlock/pkg/context/xowner"
	"github.com/omeyang/xlock/pkg/observability/xlog"
)

type monitorKey struct{}

// WithMonitorTime 对使用返回 ctx 的调用强制启用监控模式，并以 d 作为放弃等待的时长。
// d <= 0 时原样返回 ctx。
func WithMonitorTime(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, monitorKey{}, d)
}

// monitorTime 决定本次获取的策略：ok=false 表示阻塞模式。
func (l *Locker) monitorTime(ctx context.Context) (time.Duration, bool) {
	if d, ok := ctx.Value(monitorKey{}).(time.Duration); ok {
		return d, true
	}
	if l.cfg.monitored.Load() {
		return time.Duration(l.cfg.maxAcquire.Load()), true
	}
	return 0, false
}

// acquireBlocking 无限等待。返回 held=false 表示锁在等待期间被禁用，调用方不持锁继续。
func (l *Locker) acquireBlocking(ctx context.Context, h *Holder, o *xowner.Owner) (int, bool, error) {
	n, err := h.mutex.lock(ctx, o, h.disabledCh)
	if errors.Is(err, errAborted) {
		l.logger.Warn(ctx, "lock disabled while waiting, continuing without lock", xlog.LockKey(h.key))
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// acquireMonitored 分片等待：首片 MinPollInterval，每次失败翻倍直到 8 倍。
// 每次失败记录 Info；累计超过 maxTime 记录一条 Warn 并放弃（held=false）。
// 最后一片被截断到剩余时间，超出 maxTime 的部分不超过一次调度延迟。
func (l *Locker) acquireMonitored(ctx context.Context, h *Holder, o *xowner.Owner, maxTime time.Duration) (int, bool, error) {
	minPoll := time.Duration(l.cfg.minPoll.Load())
	wait, maxWait := minPoll, minPoll*pollCapFactor
	start := time.Now()
	for {
		slice := min(wait, maxTime-time.Since(start))
		n, ok, err := h.mutex.lockWithin(ctx, o, slice, h.disabledCh)
		if errors.Is(err, errAborted) {
			l.logger.Warn(ctx, "lock disabled while waiting, continuing without lock", xlog.LockKey(h.key))
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		if ok {
			return n, true, nil
		}

		elapsed := time.Since(start)
		if l.enabled(ctx, xlog.LevelInfo) {
			l.logger.Info(ctx, "lock not acquired yet",
				xlog.LockKey(h.key), xlog.Duration(elapsed),
				slog.String("locks", l.Summary()),
				slog.String("holder", h.Summarize(true)))
		}
		if elapsed >= maxTime {
			l.logger.Warn(ctx, "lock acquire timed out, continuing without lock",
				xlog.LockKey(h.key), slog.Duration("max_acquire", maxTime),
				slog.String("holder", h.String()))
			return 0, false, nil
		}
		if wait < maxWait {
			wait = min(wait*2, maxWait)
		}
		l.logger.Debug(ctx, "waiting for lock", xlog.LockKey(h.key), slog.Duration("slice", wait))
	}
}

func (l *Locker) enabled(ctx context.Context, level xlog.Level) bool {
	if lv, ok := l.logger.(xlog.Leveler); ok {
		return lv.Enabled(ctx, level)
	}
	return true
}
