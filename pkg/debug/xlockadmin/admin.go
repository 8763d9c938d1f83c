package xlockadmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/omeyang/xlock/pkg/context/xowner"
	"github.com/omeyang/xlock/pkg/observability/xlog"
	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

// DefaultMaxReasons 按原因统计的最大条目数，超出时淘汰最久未出现的原因。
const DefaultMaxReasons = 1024

var (
	ErrNilLocker       = errors.New("xlockadmin: nil locker")
	ErrReportRunning   = errors.New("xlockadmin: report already running")
	ErrInvalidDuration = errors.New("xlockadmin: invalid duration")
)

type reasonStat struct {
	total   int64
	current int64
}

// Admin 锁管理器的统计与管理入口。
type Admin struct {
	locker   *xkeylock.Locker
	logger   xlog.Logger
	unlisten func()

	mu             sync.Mutex
	lockCount      int64
	current        int64
	maxDepth       int
	maxConcurrency int
	acquireTotal   time.Duration
	holdTotal      time.Duration
	holdCount      int64
	reasons        *lru.Cache[string, *reasonStat]

	reportMu sync.Mutex
	report   *cron.Cron
}

// Option Admin 选项。
type Option func(*config)

type config struct {
	logger     xlog.Logger
	maxReasons int
}

func WithLogger(l xlog.Logger) Option { return func(c *config) { c.logger = l } }

// WithMaxReasons 按原因统计的容量，默认 DefaultMaxReasons。
func WithMaxReasons(n int) Option { return func(c *config) { c.maxReasons = n } }

// New 创建 Admin 并注册为 locker 的监听器，不再使用时调用 Close。
func New(locker *xkeylock.Locker, opts ...Option) (*Admin, error) {
	if locker == nil {
		return nil, ErrNilLocker
	}
	c := config{maxReasons: DefaultMaxReasons}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = xlog.Default()
	}
	reasons, err := lru.New[string, *reasonStat](c.maxReasons)
	if err != nil {
		return nil, fmt.Errorf("xlockadmin: reason cache: %w", err)
	}
	a := &Admin{
		locker:  locker,
		logger:  c.logger.With(xlog.Component("xlockadmin")),
		reasons: reasons,
	}
	a.unlisten = locker.Listen(a)
	return a, nil
}

// Close 注销监听器并停止定时巡检，可重复调用。
func (a *Admin) Close() {
	a.unlisten()
	a.StopReport()
}

// Locker 被管理的锁管理器。
func (a *Admin) Locker() *xkeylock.Locker { return a.locker }

func (a *Admin) OnLock(ctx context.Context, h *xkeylock.Holder, acquire time.Duration) {
	depth := xowner.From(ctx).Depth() - 1
	waiters := h.Waiters()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lockCount++
	a.current++
	a.acquireTotal += acquire
	a.maxDepth = max(a.maxDepth, depth)
	a.maxConcurrency = max(a.maxConcurrency, waiters)
	rs, ok := a.reasons.Get(h.Reason())
	if !ok {
		rs = &reasonStat{}
		a.reasons.Add(h.Reason(), rs)
	}
	rs.total++
	rs.current++
}

func (a *Admin) OnUnlock(_ context.Context, h *xkeylock.Holder, held time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current > 0 {
		a.current--
	}
	a.holdTotal += held
	a.holdCount++
	// 原因已被淘汰时不再补建
	if rs, ok := a.reasons.Peek(h.Reason()); ok && rs.current > 0 {
		rs.current--
	}
}

var _ xkeylock.Listener = (*Admin)(nil)

// LockCount 累计加锁次数（仅最外层）。
func (a *Admin) LockCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lockCount
}

// LockCounts 按原因的累计加锁次数。
func (a *Admin) LockCounts() map[string]int64 {
	return a.byReason(func(rs *reasonStat) int64 { return rs.total })
}

// CurrentCount 当前被持有的锁数量。
func (a *Admin) CurrentCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// CurrentCounts 按原因的当前持有数，不含为 0 的原因。
func (a *Admin) CurrentCounts() map[string]int64 {
	return a.byReason(func(rs *reasonStat) int64 { return rs.current })
}

func (a *Admin) byReason(pick func(*reasonStat) int64) map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64, a.reasons.Len())
	for _, reason := range a.reasons.Keys() {
		if rs, ok := a.reasons.Peek(reason); ok {
			if n := pick(rs); n > 0 {
				out[reason] = n
			}
		}
	}
	return out
}

// MaxDepth 观察到的最大嵌套深度（持有栈深度减一）。
func (a *Admin) MaxDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxDepth
}

// MaxConcurrency 加锁时同一把锁上观察到的最多等待者数。
func (a *Admin) MaxConcurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxConcurrency
}

func (a *Admin) AverageAcquireTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lockCount == 0 {
		return 0
	}
	return a.acquireTotal / time.Duration(a.lockCount)
}

func (a *Admin) AverageHoldTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holdCount == 0 {
		return 0
	}
	return a.holdTotal / time.Duration(a.holdCount)
}

// Reset 清零统计。当前持有数保留，否则之后的释放会使其为负。
func (a *Admin) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lockCount = 0
	a.maxDepth = 0
	a.maxConcurrency = 0
	a.acquireTotal = 0
	a.holdTotal = 0
	a.holdCount = 0
	for _, reason := range a.reasons.Keys() {
		rs, ok := a.reasons.Peek(reason)
		switch {
		case !ok:
		case rs.current == 0:
			a.reasons.Remove(reason)
		default:
			rs.total = 0
		}
	}
}

// Stats 统计快照。
type Stats struct {
	LockCount          int64            `json:"lock_count"`
	CurrentCount       int64            `json:"current_count"`
	MaxDepth           int              `json:"max_depth"`
	MaxConcurrency     int              `json:"max_concurrency"`
	AverageAcquireTime string           `json:"average_acquire_time"`
	AverageHoldTime    string           `json:"average_hold_time"`
	LockCounts         map[string]int64 `json:"lock_counts,omitempty"`
	CurrentCounts      map[string]int64 `json:"current_counts,omitempty"`
	Locks              int              `json:"locks"`
}

func (a *Admin) Stats() Stats {
	return Stats{
		LockCount:          a.LockCount(),
		CurrentCount:       a.CurrentCount(),
		MaxDepth:           a.MaxDepth(),
		MaxConcurrency:     a.MaxConcurrency(),
		AverageAcquireTime: a.AverageAcquireTime().String(),
		AverageHoldTime:    a.AverageHoldTime().String(),
		LockCounts:         a.LockCounts(),
		CurrentCounts:      a.CurrentCounts(),
		Locks:              a.locker.Len(),
	}
}

// Locks 当前锁的摘要（含创建现场），按创建时间排序。
func (a *Admin) Locks() []string {
	keys := a.locker.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if h, ok := a.locker.Lookup(k); ok {
			out = append(out, h.Summarize(true))
		}
	}
	return out
}

// StartReport 按 schedule（标准 5 段 cron 表达式或 @every 1m 等描述符）
// 定期以 Warn 输出创建时间超过 olderThan 的锁。
func (a *Admin) StartReport(schedule string, olderThan time.Duration) error {
	if olderThan <= 0 {
		return fmt.Errorf("%w: report threshold must be positive, got %s", ErrInvalidDuration, olderThan)
	}
	a.reportMu.Lock()
	defer a.reportMu.Unlock()
	if a.report != nil {
		return ErrReportRunning
	}
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)))
	if _, err := c.AddFunc(schedule, func() { a.ReportOld(context.Background(), olderThan) }); err != nil {
		return fmt.Errorf("xlockadmin: bad report schedule %q: %w", schedule, err)
	}
	c.Start()
	a.report = c
	return nil
}

// StopReport 停止定时巡检并等待正在执行的一次完成。
func (a *Admin) StopReport() {
	a.reportMu.Lock()
	c := a.report
	a.report = nil
	a.reportMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// ReportOld 以 Warn 输出创建时间超过 olderThan 的锁，返回输出条数。
func (a *Admin) ReportOld(ctx context.Context, olderThan time.Duration) int {
	n := 0
	for _, info := range a.locker.Holders() {
		if info.Age < olderThan {
			continue
		}
		n++
		a.logger.Warn(ctx, "lock held too long",
			xlog.LockKey(info.KeyString), xlog.Reason(info.Reason),
			slog.Duration("age", info.Age), slog.String("owner", info.Owner),
			slog.Int("waiters", info.Waiters), slog.Any("trace", info.Trace))
	}
	return n
}
