package xkeylock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

// Lock 是 Acquire 返回的句柄。
type Lock struct {
	locker *Locker
	// ctx 获取时的上下文（带持有者），释放时用于日志和监听器
	ctx        context.Context
	holder     *Holder
	owner      *xowner.Owner
	acquiredAt time.Time
	held       bool
	outermost  bool
	done       atomic.Bool
}

// Context 携带持有者的上下文，锁内的嵌套调用应使用它。
func (lk *Lock) Context() context.Context { return lk.ctx }

func (lk *Lock) Key() any { return lk.holder.key }

func (lk *Lock) Holder() *Holder { return lk.holder }

// Held 是否真正持有互斥量。监控模式等待超时或锁被禁用时为 false。
func (lk *Lock) Held() bool { return lk.held }

// Outermost 是否为该持有者对此锁的最外层获取。
func (lk *Lock) Outermost() bool { return lk.outermost }

// SetWarnTime 调整所属 Holder 的告警持有时长。
func (lk *Lock) SetWarnTime(d time.Duration) { lk.holder.SetWarnTime(d) }

// Release 释放锁。幂等：首次返回 nil，后续返回 ErrLockNotHeld。
func (lk *Lock) Release() error {
	return lk.release(0)
}

// ReleaseAfter 立即将锁移出持有栈，互斥量在 d 之后才真正释放，期间其他请求继续等待。
// 解锁事件在真正释放时由定时器 goroutine 发出，持有时长包含 d，
// 事件 ctx 不可取消且持有者为延迟释放占位者。只对最外层获取生效，其余情况等同 Release。
func (lk *Lock) ReleaseAfter(d time.Duration) error {
	return lk.release(d)
}

func (lk *Lock) release(d time.Duration) error {
	return lk.locker.release(lk, d)
}
