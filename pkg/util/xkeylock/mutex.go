package xkeylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

// errAborted 等待被 abort channel 打断（锁被禁用）
var errAborted = errors.New("xkeylock: wait aborted")

// reentrantMutex 按持有者计数的可重入互斥量。
// sem 是 size=1 的 channel：
//   - 发送成功 = 获取锁
//   - 发送阻塞 = 锁被占用
//   - 接收 = 释放锁
type reentrantMutex struct {
	sem chan struct{}

	mu    sync.Mutex // 保护 owner/count
	owner *xowner.Owner
	count int

	waiters atomic.Int32
}

func newReentrantMutex() *reentrantMutex {
	return &reentrantMutex{sem: make(chan struct{}, 1)}
}

// reenter 当 o 已持有时增加计数。
func (m *reentrantMutex) reenter(o *xowner.Owner) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count > 0 && m.owner == o {
		m.count++
		return m.count, true
	}
	return 0, false
}

func (m *reentrantMutex) take(o *xowner.Owner) int {
	m.mu.Lock()
	m.owner = o
	m.count = 1
	m.mu.Unlock()
	return 1
}

// tryLock 非阻塞获取（含重入）。
func (m *reentrantMutex) tryLock(o *xowner.Owner) (int, bool) {
	if n, ok := m.reenter(o); ok {
		return n, true
	}
	select {
	case m.sem <- struct{}{}:
		return m.take(o), true
	default:
		return 0, false
	}
}

// lock 阻塞获取，直到成功、ctx 结束或 abort 关闭。
func (m *reentrantMutex) lock(ctx context.Context, o *xowner.Owner, abort <-chan struct{}) (int, error) {
	if n, ok := m.reenter(o); ok {
		return n, nil
	}
	m.waiters.Add(1)
	defer m.waiters.Add(-1)
	select {
	case m.sem <- struct{}{}:
		return m.take(o), nil
	case <-abort:
		return 0, errAborted
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// lockWithin 最多等待 d。超时返回 ok=false 且 err=nil。
func (m *reentrantMutex) lockWithin(ctx context.Context, o *xowner.Owner, d time.Duration, abort <-chan struct{}) (int, bool, error) {
	if n, ok := m.tryLock(o); ok {
		return n, true, nil
	}
	if d <= 0 {
		return 0, false, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	m.waiters.Add(1)
	defer m.waiters.Add(-1)
	select {
	case m.sem <- struct{}{}:
		return m.take(o), true, nil
	case <-t.C:
		return 0, false, nil
	case <-abort:
		return 0, false, errAborted
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

// unlock 减少 o 的持有计数，归零时释放 sem。o 不是持有者时返回 ok=false。
func (m *reentrantMutex) unlock(o *xowner.Owner) (int, bool) {
	m.mu.Lock()
	if m.count == 0 || m.owner != o {
		m.mu.Unlock()
		return 0, false
	}
	m.count--
	remaining := m.count
	if remaining == 0 {
		m.owner = nil
	}
	m.mu.Unlock()
	if remaining == 0 {
		<-m.sem
	}
	return remaining, true
}

// transfer 把最外层持有（count==1）转交给 to。
func (m *reentrantMutex) transfer(from, to *xowner.Owner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count != 1 || m.owner != from {
		return false
	}
	m.owner = to
	return true
}

func (m *reentrantMutex) state() (*xowner.Owner, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.count
}

func (m *reentrantMutex) heldBy(o *xowner.Owner) bool {
	owner, n := m.state()
	return n > 0 && owner == o
}
