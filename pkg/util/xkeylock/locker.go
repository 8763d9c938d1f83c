package xkeylock

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/omeyang/xlock/pkg/context/xowner"
	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// Locker 按 key 互斥的可重入锁管理器。
//
// 每个 Locker 拥有独立的锁表、监听器和配置；不同 Locker 之间互不影响。
type Locker struct {
	opts      options
	logger    xlog.Logger
	cfg       runtimeConfig
	table     *lockTable
	listeners *listenerRegistry

	// delayed 延迟释放期间代为持锁的身份
	delayed *xowner.Owner
}

// New 创建 Locker。
func New(opts ...Option) (*Locker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	logger := o.logger.With(xlog.Component("xkeylock"))
	l := &Locker{
		opts:      o,
		logger:    logger,
		table:     newLockTable(),
		listeners: newListenerRegistry(logger, o.breakerFailures, o.breakerTimeout),
		delayed:   xowner.New("delayed-release"),
	}
	l.cfg.store(o.config)
	return l, nil
}

// Do 在 key 的锁内执行 fn。
//
// fn 收到的 ctx 携带当前持有者，嵌套调用须使用它才能重入。
// fn 返回的错误原样返回；fn panic 时先完成释放再继续向上传播。
// key 为 nil 时记录 Warn 并不加锁直接执行 fn。
func (l *Locker) Do(ctx context.Context, key any, reason string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilOperation
	}
	if key == nil {
		l.logger.Warn(ctx, "locking with nil key, running unsynchronized", xlog.Reason(reason))
		return fn(ctx)
	}
	lk, err := l.Acquire(ctx, key, reason)
	if err != nil {
		return err
	}
	defer lk.release(0) //nolint:errcheck // 每个 Lock 只在这里释放一次
	return fn(lk.Context())
}

// WithKeyLock 是 Do 的带返回值版本。
func WithKeyLock[T any](ctx context.Context, l *Locker, key any, reason string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	if fn == nil {
		return result, ErrNilOperation
	}
	err := l.Do(ctx, key, reason, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Acquire 获取 key 的锁并返回句柄，调用方负责 Release。
//
// 后续在锁内的嵌套调用应使用 [Lock.Context]。
// 阻塞期间 ctx 结束时返回 ctx.Err()。
// 监控模式下等待超时会在不持锁的情况下返回句柄（[Lock.Held] 为 false）。
func (l *Locker) Acquire(ctx context.Context, key any, reason string) (*Lock, error) {
	if ctx == nil {
		panic("xkeylock: nil Context")
	}
	if key == nil {
		return nil, ErrNilKey
	}
	if t := reflect.TypeOf(key); !t.Comparable() {
		return nil, fmt.Errorf("%w: %s", ErrUncomparableKey, t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, owner := xowner.Ensure(ctx)
	start := time.Now()
	h, err := l.resolve(ctx, owner, key, reason)
	if err != nil {
		return nil, err
	}

	var (
		count int
		held  bool
	)
	if maxTime, ok := l.monitorTime(ctx); ok {
		count, held, err = l.acquireMonitored(ctx, h, owner, maxTime)
	} else {
		count, held, err = l.acquireBlocking(ctx, h, owner)
	}
	if err != nil {
		l.table.release(h)
		return nil, err
	}
	if !held {
		// 不持锁继续执行：不再是等待者，也不入持有栈、不产生事件
		l.table.release(h)
	}

	lk := &Lock{locker: l, ctx: ctx, holder: h, owner: owner, held: held, acquiredAt: time.Now()}
	if held && count == 1 {
		lk.outermost = true
		owner.Push(h)
		h.lockedAt.Store(lk.acquiredAt.UnixNano())
		acquire := lk.acquiredAt.Sub(start)
		level := slog.LevelDebug
		if acquire > time.Duration(l.cfg.minPoll.Load()) {
			level = slog.LevelInfo
		}
		l.log(ctx, level, "acquired lock", xlog.LockKey(key), xlog.Reason(reason), xlog.Duration(acquire))
		l.listeners.notify(ctx, EventLock, h, acquire)
	}
	return lk, nil
}

// resolve 在锁表临界区内取得或创建 Holder，并登记一个引用。
// 只有新建 Holder 时做兼容性检查（WithCheckOnJoin 可扩展到加入已有 Holder）。
func (l *Locker) resolve(ctx context.Context, owner *xowner.Owner, key any, reason string) (*Holder, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.holders[key]
	switch {
	case !ok:
		if err := l.checkCompatibility(ctx, owner, key); err != nil {
			return nil, err
		}
		h = newHolder(key, reason, owner, &l.opts, time.Duration(l.cfg.warnHold.Load()))
		t.holders[key] = h
		t.broadcastLocked()
	case h.mutex.heldBy(owner):
		// 重入
	default:
		if l.opts.checkOnJoin {
			if err := l.checkCompatibility(ctx, owner, key); err != nil {
				return nil, err
			}
		}
		if cur, n := h.mutex.state(); n > 0 {
			l.logger.Debug(ctx, "lock busy, waiting",
				xlog.LockKey(key), xlog.Reason(reason),
				slog.String("held_by", cur.String()), slog.Int("waiters", h.Waiters()))
		}
	}
	h.refs++
	return h, nil
}

// release 完成一次释放：最外层时通知监听器并出栈，然后解锁并归还锁表引用。
// 延迟释放时立即出栈，通知与解锁在 delay 之后进行。
func (l *Locker) release(lk *Lock, delay time.Duration) error {
	if !lk.done.CompareAndSwap(false, true) {
		return ErrLockNotHeld
	}
	ctx, h, o := lk.ctx, lk.holder, lk.owner
	if !lk.held {
		l.logger.Warn(ctx, "lock not held by current owner, skipping release",
			xlog.LockKey(h.key), xlog.Reason(h.reason), slog.String("held_by", h.Owner().String()))
		return nil
	}

	if lk.outermost && delay > 0 && h.mutex.transfer(o, l.delayed) {
		o.Remove(h)
		l.logger.Debug(ctx, "lock release delayed", xlog.LockKey(h.key), slog.Duration("delay", delay))
		// 延迟期间互斥量归 delayed 所有，解锁事件由定时器以 delayed 身份发出
		dctx := xowner.Attach(context.WithoutCancel(ctx), l.delayed)
		time.AfterFunc(delay, func() {
			l.finish(dctx, lk)
			h.mutex.unlock(l.delayed)
			l.table.release(h)
		})
		return nil
	}
	if lk.outermost {
		l.finish(ctx, lk)
		o.Remove(h)
	}

	if _, ok := h.mutex.unlock(o); !ok {
		l.logger.Warn(ctx, "lock not held by current owner, skipping release",
			xlog.LockKey(h.key), xlog.Reason(h.reason), slog.String("held_by", h.Owner().String()))
	}
	l.table.release(h)
	return nil
}

// finish 最外层持有结束：清除持有时间、通知监听器并记录持有时长。
func (l *Locker) finish(ctx context.Context, lk *Lock) {
	h := lk.holder
	held := time.Since(lk.acquiredAt)
	h.lockedAt.Store(0)
	l.listeners.notify(ctx, EventUnlock, h, held)
	level := slog.LevelDebug
	if held > h.WarnTime() {
		level = slog.LevelWarn
	}
	l.log(ctx, level, "released lock", xlog.LockKey(h.key), xlog.Reason(h.reason), xlog.Duration(held))
}

func (l *Locker) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	switch level {
	case slog.LevelDebug:
		l.logger.Debug(ctx, msg, attrs...)
	case slog.LevelInfo:
		l.logger.Info(ctx, msg, attrs...)
	default:
		l.logger.Warn(ctx, msg, attrs...)
	}
}

// Listen 注册监听器，返回注销函数（可重复调用）。
func (l *Locker) Listen(li Listener) (unlisten func()) {
	if li == nil {
		return func() {}
	}
	return l.listeners.add(li)
}

// Unlisten 注销与 li 相等的监听器。ListenerFunc 等不可比较的监听器需使用 Listen 的返回值注销。
func (l *Locker) Unlisten(li Listener) bool {
	return l.listeners.remove(li)
}

// Listeners 返回已注册监听器及其熔断状态。
func (l *Locker) Listeners() []ListenerStatus {
	return l.listeners.status()
}

// Len 当前锁表中的 key 数量。
func (l *Locker) Len() int {
	return l.table.len()
}

// Keys 当前锁表中的 key，按创建时间排序。
func (l *Locker) Keys() []any {
	hs := l.table.snapshot()
	keys := make([]any, len(hs))
	for i, h := range hs {
		keys[i] = h.key
	}
	return keys
}

// Lookup 返回 key 当前的 Holder。
func (l *Locker) Lookup(key any) (*Holder, bool) {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return nil, false
	}
	h := l.table.get(key)
	return h, h != nil
}

// Holders 当前所有锁的快照，按创建时间排序。
func (l *Locker) Holders() []HolderInfo {
	hs := l.table.snapshot()
	out := make([]HolderInfo, len(hs))
	for i, h := range hs {
		out[i] = h.Info()
	}
	return out
}

// Summary 所有锁的多行摘要。
func (l *Locker) Summary() string {
	hs := l.table.snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "%d locks", len(hs))
	for _, h := range hs {
		b.WriteString("\n  ")
		b.WriteString(h.String())
	}
	return b.String()
}

// CurrentLocks ctx 持有者当前持有的锁（获取顺序）。
func (l *Locker) CurrentLocks(ctx context.Context) []*Holder {
	holds := xowner.From(ctx).Holds()
	out := make([]*Holder, 0, len(holds))
	for _, hd := range holds {
		if h, ok := hd.(*Holder); ok {
			out = append(out, h)
		}
	}
	return out
}

// Disable 禁用 key 当前的 Holder 并将其移出锁表：
// 之后的请求创建新的 Holder，正在等待旧 Holder 的调用不持锁继续执行。
func (l *Locker) Disable(key any) bool {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		return false
	}
	h := l.table.detach(key)
	if h == nil {
		return false
	}
	h.disable()
	l.logger.Warn(context.Background(), "lock disabled", xlog.LockKey(key), slog.String("holder", h.String()))
	return true
}

// WaitIdle 阻塞直到锁表为空或 ctx 结束。
func (l *Locker) WaitIdle(ctx context.Context) error {
	for {
		empty, changed := l.table.watch()
		if empty {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
