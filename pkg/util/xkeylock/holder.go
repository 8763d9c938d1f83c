package xkeylock

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

var _ xowner.Hold = (*Holder)(nil)

// Holder 是单个 key 的锁：可重入互斥量加诊断信息。
//
// Holder 在首次请求某个 key 时创建，在无人持有且无人等待时从锁表移除，
// 移除后不再复用；之后同一 key 的请求会创建新的 Holder。
// 所有导出方法并发安全。
type Holder struct {
	key       any
	reason    string
	createdAt time.Time
	creator   *xowner.Owner
	pcs       []uintptr
	filter    func(runtime.Frame) bool

	mutex *reentrantMutex

	// refs 持有者 + 等待者数量，由 lockTable.mu 保护
	refs int

	// lockedAt 最外层获取时间（UnixNano），未持有时为 0
	lockedAt atomic.Int64
	warnTime atomic.Int64

	disabled    atomic.Bool
	disabledCh  chan struct{}
	disableOnce sync.Once

	traceOnce sync.Once
	frames    []runtime.Frame
	site      uint64
}

func newHolder(key any, reason string, creator *xowner.Owner, opts *options, warn time.Duration) *Holder {
	h := &Holder{
		key:        key,
		reason:     reason,
		createdAt:  time.Now(),
		creator:    creator,
		filter:     opts.frameFilter,
		mutex:      newReentrantMutex(),
		disabledCh: make(chan struct{}),
	}
	// newHolder ← resolve ← Acquire ← Do/业务代码
	h.pcs = captureCallers(1, opts.traceDepth)
	h.warnTime.Store(int64(warn))
	return h
}

// HoldKey 实现 xowner.Hold。
func (h *Holder) HoldKey() any { return h.key }

func (h *Holder) Key() any { return h.key }

// Reason 创建该锁的调用给出的原因。
func (h *Holder) Reason() string { return h.reason }

func (h *Holder) CreatedAt() time.Time { return h.createdAt }

func (h *Holder) Age() time.Duration { return time.Since(h.createdAt) }

// Creator 创建该锁的持有者（仅诊断）。
func (h *Holder) Creator() *xowner.Owner { return h.creator }

// Owner 当前持有者，未持有时返回 nil。
func (h *Holder) Owner() *xowner.Owner {
	o, n := h.mutex.state()
	if n == 0 {
		return nil
	}
	return o
}

// HoldCount 当前持有者的重入计数。
func (h *Holder) HoldCount() int {
	_, n := h.mutex.state()
	return n
}

// Locked 是否被任意持有者持有。
func (h *Holder) Locked() bool { return h.HoldCount() > 0 }

// Waiters 正在等待该锁的调用数。
func (h *Holder) Waiters() int { return int(h.mutex.waiters.Load()) }

// HeldFor 本次最外层持有已经过的时间，未持有返回 0。
func (h *Holder) HeldFor() time.Duration {
	at := h.lockedAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

// WarnTime 持有超过该时长时释放日志升级为 Warn。
func (h *Holder) WarnTime() time.Duration { return time.Duration(h.warnTime.Load()) }

func (h *Holder) SetWarnTime(d time.Duration) {
	if d > 0 {
		h.warnTime.Store(int64(d))
	}
}

// Disabled 是否已被禁用。
func (h *Holder) Disabled() bool { return h.disabled.Load() }

func (h *Holder) disable() bool {
	first := false
	h.disableOnce.Do(func() {
		first = true
		h.disabled.Store(true)
		close(h.disabledCh)
	})
	return first
}

func (h *Holder) resolveTrace() {
	h.traceOnce.Do(func() {
		h.frames = filterFrames(h.pcs, h.filter)
		h.site = siteFingerprint(h.frames)
	})
}

// Trace 创建现场中保留下来的业务代码帧。
func (h *Holder) Trace() []runtime.Frame {
	h.resolveTrace()
	return h.frames
}

// Site 创建现场指纹，相同代码路径创建的锁指纹相同。
func (h *Holder) Site() uint64 {
	h.resolveTrace()
	return h.site
}

// String 返回单行摘要。
func (h *Holder) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v (%s) age=%s", h.key, h.reason, h.Age().Round(time.Millisecond))
	if o, n := h.mutex.state(); n > 0 {
		fmt.Fprintf(&b, " held by %s x%d", o, n)
	}
	if w := h.Waiters(); w > 0 {
		fmt.Fprintf(&b, " waiters=%d", w)
	}
	if h.Disabled() {
		b.WriteString(" disabled")
	}
	return b.String()
}

// Summarize withTrace 为 true 时附带创建现场。
func (h *Holder) Summarize(withTrace bool) string {
	if !withTrace {
		return h.String()
	}
	var b strings.Builder
	b.WriteString(h.String())
	for _, f := range h.Trace() {
		b.WriteString("\n\tat ")
		b.WriteString(formatFrame(f))
	}
	return b.String()
}

// HolderInfo 是 Holder 的只读快照，供管理工具序列化。
type HolderInfo struct {
	Key       any           `json:"-"`
	KeyString string        `json:"key"`
	KeyType   string        `json:"key_type"`
	Reason    string        `json:"reason"`
	CreatedAt time.Time     `json:"created_at"`
	Age       time.Duration `json:"age"`
	HeldFor   time.Duration `json:"held_for"`
	Creator   string        `json:"creator"`
	Owner     string        `json:"owner,omitempty"`
	HoldCount int           `json:"hold_count"`
	Waiters   int           `json:"waiters"`
	Disabled  bool          `json:"disabled,omitempty"`
	Site      string        `json:"site"`
	Trace     []string      `json:"trace,omitempty"`
}

// Info 生成快照。
func (h *Holder) Info() HolderInfo {
	o, n := h.mutex.state()
	info := HolderInfo{
		Key:       h.key,
		KeyString: fmt.Sprintf("%v", h.key),
		KeyType:   KeyTypeOf(h.key),
		Reason:    h.reason,
		CreatedAt: h.createdAt,
		Age:       h.Age(),
		HeldFor:   h.HeldFor(),
		Creator:   h.creator.String(),
		HoldCount: n,
		Waiters:   h.Waiters(),
		Disabled:  h.Disabled(),
		Site:      strconv.FormatUint(h.Site(), 16),
	}
	if n > 0 {
		info.Owner = o.String()
	}
	for _, f := range h.Trace() {
		info.Trace = append(info.Trace, formatFrame(f))
	}
	return info
}
