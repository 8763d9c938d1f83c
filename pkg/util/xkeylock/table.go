package xkeylock

import (
	"sort"
	"sync"
)

// lockTable key → Holder。创建与移除都在 mu 下完成，不会互相竞争。
//
// Holder 的 refs（持有者 + 等待者）在 mu 下增减，归零时才移出表；
// 已解析出 Holder 但尚未开始等待的调用方也计入 refs。
type lockTable struct {
	mu      sync.Mutex
	holders map[any]*Holder
	// changed 每次变更时关闭并替换，用于唤醒观察者
	changed chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{
		holders: make(map[any]*Holder),
		changed: make(chan struct{}),
	}
}

func (t *lockTable) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// release 归还一个引用，归零且仍是表中当前 Holder 时移除。
func (t *lockTable) release(h *Holder) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h.refs--
	removed := false
	if h.refs <= 0 {
		h.refs = 0
		if cur, ok := t.holders[h.key]; ok && cur == h {
			delete(t.holders, h.key)
			removed = true
		}
	}
	t.broadcastLocked()
	return removed
}

// detach 把 key 当前的 Holder 移出表（不影响其引用计数）。
func (t *lockTable) detach(key any) *Holder {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.holders[key]
	if !ok {
		return nil
	}
	delete(t.holders, key)
	t.broadcastLocked()
	return h
}

func (t *lockTable) get(key any) *Holder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holders[key]
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}

// snapshot 按创建时间排序。
func (t *lockTable) snapshot() []*Holder {
	t.mu.Lock()
	out := make([]*Holder, 0, len(t.holders))
	for _, h := range t.holders {
		out = append(out, h)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// watch 返回表为空时的 true，否则返回下一次变更的通知 channel。
func (t *lockTable) watch() (bool, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders) == 0, t.changed
}
