package xkeylock

import (
	"context"
	"time"
)

// EventType 锁事件类型。
type EventType uint8

const (
	EventLock EventType = iota + 1
	EventUnlock
)

func (e EventType) String() string {
	switch e {
	case EventLock:
		return "lock"
	case EventUnlock:
		return "unlock"
	}
	return "unknown"
}

// ListenerFunc 把单个函数适配为 Listener。函数值不可比较，只能通过 Listen 返回的函数注销。
type ListenerFunc func(ctx context.Context, ev EventType, h *Holder, d time.Duration)

func (f ListenerFunc) OnLock(ctx context.Context, h *Holder, d time.Duration) {
	f(ctx, EventLock, h, d)
}

func (f ListenerFunc) OnUnlock(ctx context.Context, h *Holder, d time.Duration) {
	f(ctx, EventUnlock, h, d)
}

var _ Listener = ListenerFunc(nil)
