package xkeylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlock/pkg/context/xowner"
)

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(WithConfig(Config{}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c := DefaultConfig()
	c.MinPollInterval = time.Hour
	_, err = New(WithConfig(c))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithTraceDepth(-1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithListenerBreaker(0, time.Second))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDoRunsAndCleansUp(t *testing.T) {
	l, _ := newTestLocker(t)
	called := false
	err := l.Do(context.Background(), "k", "test", func(ctx context.Context) error {
		called = true
		assert.Equal(t, 1, l.Len())
		h, ok := l.Lookup("k")
		require.True(t, ok)
		assert.Equal(t, 1, h.HoldCount())
		assert.Equal(t, "test", h.Reason())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Keys())
}

func TestMutualExclusion(t *testing.T) {
	l, _ := newTestLocker(t)
	const workers, rounds = 8, 50

	var inside, maxInside atomic.Int32
	counter := 0
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				err := l.Do(context.Background(), "shared", "inc", func(context.Context) error {
					n := inside.Add(1)
					if n > maxInside.Load() {
						maxInside.Store(n)
					}
					counter++
					inside.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*rounds, counter)
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.Len())
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	l, _ := newTestLocker(t)
	holdKey(t, l, "a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, l.Do(context.Background(), "b", "other", func(context.Context) error { return nil }))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}

func TestReentrancy(t *testing.T) {
	l, _ := newTestLocker(t)
	err := l.Do(context.Background(), "k", "outer", func(ctx context.Context) error {
		return l.Do(ctx, "k", "inner", func(ctx context.Context) error {
			h, ok := l.Lookup("k")
			require.True(t, ok)
			assert.Equal(t, 2, h.HoldCount())
			assert.Equal(t, "outer", h.Reason())
			assert.Len(t, l.CurrentLocks(ctx), 1)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Zero(t, l.Len())
}

func TestReentrantKeyStaysWhileOuterHeld(t *testing.T) {
	l, _ := newTestLocker(t)
	err := l.Do(context.Background(), "k", "outer", func(ctx context.Context) error {
		require.NoError(t, l.Do(ctx, "k", "inner", func(context.Context) error { return nil }))
		h, ok := l.Lookup("k")
		require.True(t, ok)
		assert.Equal(t, 1, h.HoldCount())
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, l.Len())
}

func TestErrorTransparency(t *testing.T) {
	l, _ := newTestLocker(t)
	errBoom := errors.New("boom")
	err := l.Do(context.Background(), "k", "fail", func(context.Context) error { return errBoom })
	assert.Same(t, errBoom, err)

	// 另一个持有者能立即获得锁
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, l.Do(context.Background(), "k", "next", func(context.Context) error { return nil }))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not released after error")
	}
	assert.Zero(t, l.Len())
}

func TestPanicPropagatesAfterRelease(t *testing.T) {
	l, _ := newTestLocker(t)
	assert.PanicsWithValue(t, "boom", func() {
		_ = l.Do(context.Background(), "k", "panic", func(context.Context) error { panic("boom") })
	})
	assert.Zero(t, l.Len())
	require.NoError(t, l.Do(context.Background(), "k", "after", func(context.Context) error { return nil }))
}

func TestNilKeyRunsUnsynchronized(t *testing.T) {
	l, buf := newTestLocker(t)
	called := false
	err := l.Do(context.Background(), nil, "misuse", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 1, buf.Count("locking with nil key"))
	assert.Contains(t, buf.String(), "level=WARN")

	_, err = l.Acquire(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrNilKey)
}

func TestInvalidArguments(t *testing.T) {
	l, _ := newTestLocker(t)
	assert.ErrorIs(t, l.Do(context.Background(), "k", "", nil), ErrNilOperation)

	err := l.Do(context.Background(), []int{1}, "slice", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrUncomparableKey)

	_, err = WithKeyLock[int](context.Background(), l, "k", "", nil)
	assert.ErrorIs(t, err, ErrNilOperation)

	assert.PanicsWithValue(t, "xkeylock: nil Context", func() {
		l.Acquire(nil, "k", "") //nolint:errcheck,staticcheck // 测试 nil ctx panic
	})
}

func TestWithKeyLock(t *testing.T) {
	l, _ := newTestLocker(t)
	v, err := WithKeyLock(context.Background(), l, 7, "calc", func(context.Context) (string, error) {
		return "seven", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "seven", v)
}

func TestWaiterStartsAfterHolderReturns(t *testing.T) {
	l, _ := newTestLocker(t)
	var (
		wg      sync.WaitGroup
		t1Start time.Time
		t2Start time.Time
	)
	started := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = l.Do(context.Background(), "A", "r1", func(context.Context) error {
			t1Start = time.Now()
			close(started)
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		<-started
		_ = l.Do(context.Background(), "A", "r2", func(context.Context) error {
			t2Start = time.Now()
			return nil
		})
	}()
	wg.Wait()
	assert.GreaterOrEqual(t, t2Start.Sub(t1Start), 100*time.Millisecond)
	assert.Zero(t, l.Len())
}

func TestAcquireContextCanceled(t *testing.T) {
	l, _ := newTestLocker(t)
	release := holdKey(t, l, "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "k", "waiter")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	h, ok := l.Lookup("k")
	require.True(t, ok)
	assert.Zero(t, h.Waiters())

	release()
	assert.Zero(t, l.Len())

	_, err = l.Acquire(ctx, "k", "late")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, l.Len())
}

func TestAcquireRelease(t *testing.T) {
	l, _ := newTestLocker(t)
	lk, err := l.Acquire(context.Background(), "k", "explicit")
	require.NoError(t, err)
	assert.True(t, lk.Held())
	assert.True(t, lk.Outermost())
	assert.Equal(t, "k", lk.Key())
	assert.Len(t, l.CurrentLocks(lk.Context()), 1)

	inner, err := l.Acquire(lk.Context(), "k", "nested")
	require.NoError(t, err)
	assert.False(t, inner.Outermost())
	assert.Same(t, lk.Holder(), inner.Holder())
	require.NoError(t, inner.Release())

	require.NoError(t, lk.Release())
	assert.ErrorIs(t, lk.Release(), ErrLockNotHeld)
	assert.ErrorIs(t, lk.Release(), ErrLockNotHeld)
	assert.Empty(t, l.CurrentLocks(lk.Context()))
	assert.Zero(t, l.Len())
}

func TestReleaseAfterDelaysNextAcquire(t *testing.T) {
	l, _ := newTestLocker(t)
	lk, err := l.Acquire(context.Background(), "k", "delayed")
	require.NoError(t, err)
	require.NoError(t, lk.ReleaseAfter(60*time.Millisecond))
	assert.Empty(t, l.CurrentLocks(lk.Context()))

	start := time.Now()
	require.NoError(t, l.Do(context.Background(), "k", "next", func(context.Context) error { return nil }))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitIdle(ctx))
}

func TestReleaseAfterIdleCleanup(t *testing.T) {
	l, _ := newTestLocker(t)
	lk, err := l.Acquire(context.Background(), "k", "delayed")
	require.NoError(t, err)
	require.NoError(t, lk.ReleaseAfter(20*time.Millisecond))
	assert.Equal(t, 1, l.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitIdle(ctx))
	assert.Zero(t, l.Len())
}

func TestReleaseAfterUnlockEventAtActualRelease(t *testing.T) {
	l, _ := newTestLocker(t)
	type unlock struct {
		at   time.Time
		held time.Duration
	}
	unlocks := make(chan unlock, 4)
	l.Listen(ListenerFunc(func(_ context.Context, ev EventType, _ *Holder, d time.Duration) {
		if ev == EventUnlock {
			unlocks <- unlock{at: time.Now(), held: d}
		}
	}))

	lk, err := l.Acquire(context.Background(), "k", "delayed")
	require.NoError(t, err)
	released := time.Now()
	require.NoError(t, lk.ReleaseAfter(60*time.Millisecond))
	assert.Zero(t, xowner.From(lk.Context()).Depth(), "caller bookkeeping is immediate")
	assert.Empty(t, unlocks)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitIdle(ctx))
	require.Len(t, unlocks, 1)
	u := <-unlocks
	assert.GreaterOrEqual(t, u.at.Sub(released), 50*time.Millisecond)
	assert.GreaterOrEqual(t, u.held, 50*time.Millisecond)
}

func TestFanOutOwnerIsolation(t *testing.T) {
	run := func(t *testing.T, detach bool) int32 {
		l, _ := newTestLocker(t)
		var inside, maxInside atomic.Int32
		err := l.Do(context.Background(), 1, "parent", func(ctx context.Context) error {
			var wg sync.WaitGroup
			for i := range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					wctx := ctx
					if detach {
						wctx, _ = xowner.With(ctx, "worker")
					}
					err := l.Do(wctx, "B", "child", func(context.Context) error {
						n := inside.Add(1)
						for {
							m := maxInside.Load()
							if n <= m || maxInside.CompareAndSwap(m, n) {
								break
							}
						}
						time.Sleep(30 * time.Millisecond)
						inside.Add(-1)
						return nil
					})
					assert.NoError(t, err)
				}()
				if i == 0 {
					// 第一个 goroutine 进入后再扇出其余的
					require.Eventually(t, func() bool { return inside.Load() == 1 }, time.Second, time.Millisecond)
				}
			}
			wg.Wait()
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, l.Len())
		return maxInside.Load()
	}

	t.Run("shared ctx shares owner", func(t *testing.T) {
		assert.Greater(t, run(t, false), int32(1))
	})
	t.Run("own owner per goroutine", func(t *testing.T) {
		assert.Equal(t, int32(1), run(t, true))
	})
}

func TestWaitIdleTimeout(t *testing.T) {
	l, _ := newTestLocker(t)
	holdKey(t, l, "k")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestCurrentLocksOrder(t *testing.T) {
	l, _ := newTestLocker(t)
	err := l.Do(context.Background(), "a", "first", func(ctx context.Context) error {
		return l.Do(ctx, 1, "second", func(ctx context.Context) error {
			locks := l.CurrentLocks(ctx)
			require.Len(t, locks, 2)
			assert.Equal(t, "a", locks[0].Key())
			assert.Equal(t, 1, locks[1].Key())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Empty(t, l.CurrentLocks(context.Background()))
}

func TestDisable(t *testing.T) {
	l, buf := newTestLocker(t)
	release := holdKey(t, l, "k")
	old, ok := l.Lookup("k")
	require.True(t, ok)

	waiterDone := make(chan *Lock, 1)
	go func() {
		lk, err := l.Acquire(context.Background(), "k", "waiter")
		assert.NoError(t, err)
		waiterDone <- lk
	}()
	require.Eventually(t, func() bool { return old.Waiters() == 1 }, time.Second, time.Millisecond)

	assert.True(t, l.Disable("k"))
	assert.False(t, l.Disable("k"))
	assert.True(t, old.Disabled())

	lk := <-waiterDone
	assert.False(t, lk.Held())
	assert.Equal(t, 1, buf.Count(`level=WARN msg="lock disabled while waiting`))
	require.NoError(t, lk.Release())
	assert.Equal(t, 1, buf.Count("lock not held by current owner"))

	// 新请求创建新的 Holder
	fresh, err := l.Acquire(context.Background(), "k", "fresh")
	require.NoError(t, err)
	assert.NotSame(t, old, fresh.Holder())
	release()
	h, ok := l.Lookup("k")
	require.True(t, ok)
	assert.Same(t, fresh.Holder(), h)
	require.NoError(t, fresh.Release())
	assert.Zero(t, l.Len())
}

func TestDisableInvalidKey(t *testing.T) {
	l, _ := newTestLocker(t)
	assert.False(t, l.Disable(nil))
	assert.False(t, l.Disable([]int{}))
	_, ok := l.Lookup([]int{})
	assert.False(t, ok)
}

func TestIntrospection(t *testing.T) {
	l, _ := newTestLocker(t)
	holdKey(t, l, "k")

	infos := l.Holders()
	require.Len(t, infos, 1)
	info := infos[0]
	assert.Equal(t, "k", info.Key)
	assert.Equal(t, "k", info.KeyString)
	assert.Equal(t, "string", info.KeyType)
	assert.Equal(t, "background", info.Reason)
	assert.Equal(t, 1, info.HoldCount)
	assert.NotEmpty(t, info.Owner)
	assert.Equal(t, info.Owner, info.Creator)
	assert.NotEmpty(t, info.Site)
	assert.GreaterOrEqual(t, info.Age, time.Duration(0))

	assert.Equal(t, []any{"k"}, l.Keys())
	assert.Contains(t, l.Summary(), "1 locks")
	assert.Contains(t, l.Summary(), "k (background)")
}

func TestSlowReleaseLoggedAsWarn(t *testing.T) {
	l, buf := newTestLocker(t)
	lk, err := l.Acquire(context.Background(), "k", "slow")
	require.NoError(t, err)
	lk.SetWarnTime(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, lk.Release())
	assert.Contains(t, buf.String(), `level=WARN msg="released lock"`)
}

func TestStressManyKeys(t *testing.T) {
	l, _ := newTestLocker(t)
	var wg sync.WaitGroup
	var total atomic.Int64
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				key := (i + j) % 5
				err := l.Do(context.Background(), key, "stress", func(ctx context.Context) error {
					return l.Do(ctx, key, "nested", func(context.Context) error {
						total.Add(1)
						return nil
					})
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1600), total.Load())
	assert.Zero(t, l.Len())
}
