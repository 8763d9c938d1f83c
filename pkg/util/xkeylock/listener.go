package xkeylock

import (
	"context"
	"time"
)

//go:generate mockgen -source=listener.go -destination=mock_listener_test.go -package=xkeylock

// Listener 观察最外层加锁/解锁。
//
// 回调在加锁/解锁的调用方 goroutine 上同步执行，按注册顺序调用；
// Lock.ReleaseAfter 的 OnUnlock 在延迟结束时由定时器 goroutine 调用。
// 重入的嵌套加锁/解锁不会触发回调。回调不应阻塞。
type Listener interface {
	// OnLock acquire 为从开始请求到获得锁的耗时
	OnLock(ctx context.Context, h *Holder, acquire time.Duration)
	// OnUnlock held 为最外层持有时长
	OnUnlock(ctx context.Context, h *Holder, held time.Duration)
}
