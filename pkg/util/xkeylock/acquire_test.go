package xkeylock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoredTimeoutEscape(t *testing.T) {
	const maxAcquire, minPoll = 60 * time.Millisecond, 10 * time.Millisecond
	l, buf := newTestLocker(t, WithConfig(fastMonitor(maxAcquire, minPoll)))
	release := holdKey(t, l, "k")

	var (
		elapsed     time.Duration
		warnsInside int
		stillLocked bool
	)
	start := time.Now()
	err := l.Do(context.Background(), "k", "impatient", func(ctx context.Context) error {
		elapsed = time.Since(start)
		warnsInside = buf.Count("level=WARN")
		h, ok := l.Lookup("k")
		stillLocked = ok && h.Locked()
		assert.Empty(t, l.CurrentLocks(ctx))
		return nil
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, elapsed, maxAcquire)
	// 超出部分不超过一个分片（8 倍首片）
	assert.Less(t, elapsed, maxAcquire+pollCapFactor*minPoll)
	assert.Equal(t, 1, warnsInside)
	assert.Equal(t, 1, buf.Count("lock acquire timed out"))
	assert.GreaterOrEqual(t, buf.Count("lock not acquired yet"), 1)
	assert.True(t, stillLocked, "escaped caller runs while the holder still holds the key")

	// 释放时发现自己不是持有者，只记录不报错
	assert.Equal(t, 1, buf.Count("lock not held by current owner"))

	release()
	assert.Zero(t, l.Len())
}

func TestMonitoredAcquireSucceeds(t *testing.T) {
	l, buf := newTestLocker(t, WithConfig(fastMonitor(time.Second, 10*time.Millisecond)))
	release := holdKey(t, l, "k")
	go func() {
		time.Sleep(40 * time.Millisecond)
		release()
	}()

	lk, err := l.Acquire(context.Background(), "k", "patient")
	require.NoError(t, err)
	assert.True(t, lk.Held())
	require.NoError(t, lk.Release())

	assert.GreaterOrEqual(t, buf.Count("lock not acquired yet"), 1)
	assert.Zero(t, buf.Count("lock acquire timed out"))
	// 获取耗时超过 MinPollInterval，记录为 Info
	assert.Contains(t, buf.String(), `level=INFO msg="acquired lock"`)
	release()
	assert.Zero(t, l.Len())
}

func TestMonitoredReentry(t *testing.T) {
	l, _ := newTestLocker(t, WithConfig(fastMonitor(50*time.Millisecond, 10*time.Millisecond)))
	err := l.Do(context.Background(), "k", "outer", func(ctx context.Context) error {
		lk, err := l.Acquire(ctx, "k", "inner")
		require.NoError(t, err)
		assert.True(t, lk.Held())
		assert.Equal(t, 2, lk.Holder().HoldCount())
		return lk.Release()
	})
	require.NoError(t, err)
}

func TestMonitoredContextCanceled(t *testing.T) {
	l, _ := newTestLocker(t, WithConfig(fastMonitor(time.Second, 10*time.Millisecond)))
	holdKey(t, l, "k")
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "k", "canceled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithMonitorTimeOverride(t *testing.T) {
	// 全局为阻塞模式，MinPollInterval 仍是默认的 5s
	l, buf := newTestLocker(t)
	holdKey(t, l, "k")

	ctx := WithMonitorTime(context.Background(), 40*time.Millisecond)
	start := time.Now()
	lk, err := l.Acquire(ctx, "k", "override")
	require.NoError(t, err)
	assert.False(t, lk.Held())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, buf.Count("lock acquire timed out"))
	require.NoError(t, lk.Release())

	assert.Equal(t, context.Background(), WithMonitorTime(context.Background(), 0))
}

func TestMonitoredDisableStopsWaiting(t *testing.T) {
	l, buf := newTestLocker(t, WithConfig(fastMonitor(time.Minute, 10*time.Millisecond)))
	holdKey(t, l, "k")
	old, _ := l.Lookup("k")

	done := make(chan *Lock, 1)
	go func() {
		lk, err := l.Acquire(context.Background(), "k", "waiter")
		assert.NoError(t, err)
		done <- lk
	}()
	require.Eventually(t, func() bool { return old.Waiters() == 1 }, time.Second, time.Millisecond)
	require.True(t, l.Disable("k"))

	select {
	case lk := <-done:
		assert.False(t, lk.Held())
		require.NoError(t, lk.Release())
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Disable")
	}
	assert.Contains(t, buf.String(), `level=WARN msg="lock disabled while waiting`)
}

func TestRuntimeConfig(t *testing.T) {
	l, _ := newTestLocker(t)
	assert.Equal(t, DefaultConfig(), l.Config())

	l.SetStrictCompatibility(true)
	l.SetMonitoredAcquire(true)
	assert.True(t, l.StrictCompatibility())
	assert.True(t, l.MonitoredAcquire())

	// 下调最大等待时会把 MinPollInterval 压到 1/4
	require.NoError(t, l.SetMaxLockAcquireTime(time.Second))
	assert.Equal(t, time.Second, l.MaxLockAcquireTime())
	assert.Equal(t, 250*time.Millisecond, l.MinPollInterval())

	assert.ErrorIs(t, l.SetMaxLockAcquireTime(0), ErrInvalidConfig)
	assert.ErrorIs(t, l.SetMinPollInterval(2*time.Second), ErrInvalidConfig)
	require.NoError(t, l.SetMinPollInterval(100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, l.MinPollInterval())

	assert.ErrorIs(t, l.SetWarnHoldTime(-1), ErrInvalidConfig)
	require.NoError(t, l.SetWarnHoldTime(time.Minute))

	c := l.Config()
	assert.Equal(t, time.Minute, c.WarnHoldTime)
	assert.True(t, c.StrictCompatibility)

	assert.ErrorIs(t, l.ApplyConfig(Config{}), ErrInvalidConfig)
	require.NoError(t, l.ApplyConfig(DefaultConfig()))
	assert.Equal(t, DefaultConfig(), l.Config())
}

func TestWarnHoldTimeAppliesToNewHolders(t *testing.T) {
	l, _ := newTestLocker(t)
	require.NoError(t, l.SetWarnHoldTime(3*time.Second))
	lk, err := l.Acquire(context.Background(), "k", "")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, lk.Holder().WarnTime())
	lk.SetWarnTime(0)
	assert.Equal(t, 3*time.Second, lk.Holder().WarnTime())
	require.NoError(t, lk.Release())
}

func TestMonitoredLogsSummary(t *testing.T) {
	l, buf := newTestLocker(t, WithConfig(fastMonitor(30*time.Millisecond, 10*time.Millisecond)))
	holdKey(t, l, "busy")
	lk, err := l.Acquire(context.Background(), "busy", "x")
	require.NoError(t, err)
	require.NoError(t, lk.Release())

	out := buf.String()
	idx := strings.Index(out, "lock not acquired yet")
	require.GreaterOrEqual(t, idx, 0)
	line := out[idx:]
	line = line[:strings.IndexByte(line, '\n')]
	assert.Contains(t, line, "1 locks")
	assert.Contains(t, line, "held by")
}
