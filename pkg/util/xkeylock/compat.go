package xkeylock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omeyang/xlock/pkg/context/xowner"
	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// checkCompatibility 扫描 owner 的持有栈，检查与 key 可比较但不相等的已持有锁。
// 只观察和记录（或在严格模式下返回错误），不阻塞也不重试。
func (l *Locker) checkCompatibility(ctx context.Context, owner *xowner.Owner, key any) error {
	holds := owner.Holds()
	if len(holds) == 0 {
		return nil
	}
	var unrelated any
	for _, hd := range holds {
		held := hd.HoldKey()
		if held == key {
			continue
		}
		if l.opts.comparable(held, key) {
			summary := fmt.Sprintf("%v", held)
			if h, ok := hd.(*Holder); ok {
				summary = h.Summarize(true)
			}
			if l.cfg.strict.Load() {
				return &CompatibilityError{Held: held, Requested: key, Holder: summary}
			}
			l.logger.Warn(ctx, "locking a different key of the same kind",
				xlog.LockKey(key), slog.String("held", summary))
			return nil
		}
		if unrelated == nil {
			unrelated = held
		}
	}
	if unrelated != nil {
		l.logger.Debug(ctx, "locking a key of a different kind",
			xlog.LockKey(key), slog.Any("held", unrelated))
	}
	return nil
}
