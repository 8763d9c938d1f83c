package xlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

// ErrNilHandler 当 NewEnrichHandler 的 base handler 为 nil 时返回
var ErrNilHandler = errors.New("xlog: base handler is nil")

// EnrichHandler 自动从 context 提取锁持有者信息并注入日志
//
// 装饰模式实现，包装底层 slog.Handler，在 Handle() 时自动添加：
//   - lock_owner: 持有者名称与 ID（xowner.Owner.String）
//   - lock_depth: 持有栈深度，持有栈为空时省略
//
// ctx 中没有持有者时不注入任何字段，也不影响日志记录。
// 锁管理器在 Do 回调中传下的 ctx 总是带有持有者，因此锁内业务日志
// 可以直接与 "acquired lock"/"released lock" 诊断日志关联。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 创建 EnrichHandler
//
// 调用 WithGroup 后，lock_owner 等字段会落在该 group 下，
// 需要顶层字段时不要对带 enrich 的 logger 调用 WithGroup。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// maxEnrichAttrs 最大注入属性数量（owner + depth）
const maxEnrichAttrs = 2

// Handle 在调用底层 handler 前，从 context 提取持有者信息
//
// 根据 slog 契约，必须 Clone record 后再修改，其他 handler 可能共享同一 record。
// ctx 为 nil 时退化为无注入（xowner.From 处理了 nil ctx）。
// 持有栈深度在写日志的时刻读取，嵌套加锁的日志因此带有当时的深度。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [maxEnrichAttrs]slog.Attr
	attrs := xowner.AppendAttrs(buf[:0], ctx)
	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

// WithAttrs 返回带额外属性的新 handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

// WithGroup 返回带分组的新 handler
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
