package xowner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// 日志字段 key
const (
	KeyOwner = "lock_owner"
	KeyDepth = "lock_depth"
)

// Hold 是持有栈中的条目。
type Hold interface {
	// HoldKey 返回条目对应的锁 key。
	HoldKey() any
}

// Owner 表示一个加锁身份。
type Owner struct {
	id   string
	name string

	mu    sync.Mutex
	holds []Hold
}

type ownerKey struct{}

// New 创建新的 Owner，name 仅用于诊断输出。
func New(name string) *Owner {
	return &Owner{id: uuid.NewString(), name: name}
}

// ID 返回 Owner 的唯一标识。
func (o *Owner) ID() string {
	if o == nil {
		return ""
	}
	return o.id
}

// Name 返回创建时指定的名称。
func (o *Owner) Name() string {
	if o == nil {
		return ""
	}
	return o.name
}

// String 返回 "name(id前8位)" 形式，便于日志阅读。
func (o *Owner) String() string {
	if o == nil {
		return "<none>"
	}
	short := o.id
	if len(short) > 8 {
		short = short[:8]
	}
	if o.name == "" {
		return short
	}
	return o.name + "(" + short + ")"
}

// Push 将条目压入持有栈。
func (o *Owner) Push(h Hold) {
	o.mu.Lock()
	o.holds = append(o.holds, h)
	o.mu.Unlock()
}

// Remove 从持有栈移除最近一次压入的 h，返回是否找到。
// 释放只关心成员关系，不要求 h 位于栈顶。
func (o *Owner) Remove(h Hold) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.holds) - 1; i >= 0; i-- {
		if o.holds[i] == h {
			o.holds = append(o.holds[:i], o.holds[i+1:]...)
			return true
		}
	}
	return false
}

// Holds 返回持有栈快照（获取顺序）。
func (o *Owner) Holds() []Hold {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.holds) == 0 {
		return nil
	}
	out := make([]Hold, len(o.holds))
	copy(out, o.holds)
	return out
}

// Depth 返回当前持有的锁数量。
func (o *Owner) Depth() int {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.holds)
}

// From 返回 ctx 上的 Owner，不存在时返回 nil。
func From(ctx context.Context) *Owner {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(ownerKey{}).(*Owner)
	return o
}

// Ensure 返回 ctx 上已有的 Owner；不存在时创建一个并挂到派生 ctx 上。
func Ensure(ctx context.Context) (context.Context, *Owner) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o := From(ctx); o != nil {
		return ctx, o
	}
	o := New("")
	return context.WithValue(ctx, ownerKey{}, o), o
}

// With 总是创建新的 Owner 并挂到派生 ctx 上，覆盖 ctx 中已有的 Owner。
// 用于启动新 goroutine 时切断与父调用链的重入关系。
func With(ctx context.Context, name string) (context.Context, *Owner) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := New(name)
	return context.WithValue(ctx, ownerKey{}, o), o
}

// Attach 将指定 Owner 挂到 ctx 上。
func Attach(ctx context.Context, o *Owner) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerKey{}, o)
}

// AppendAttrs 将 ctx 中的 Owner 信息追加到 attrs，供日志 enrich 使用。
// ctx 中没有 Owner 时原样返回。
func AppendAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	o := From(ctx)
	if o == nil {
		return attrs
	}
	attrs = append(attrs, slog.String(KeyOwner, o.String()))
	if d := o.Depth(); d > 0 {
		attrs = append(attrs, slog.Int(KeyDepth, d))
	}
	return attrs
}
