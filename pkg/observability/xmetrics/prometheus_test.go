package xmetrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromListener_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromListener(reg)
	require.NoError(t, err)

	_, err = NewPromListener(reg)
	require.ErrorIs(t, err, ErrRegister)

	first.Close()
	_, err = NewPromListener(reg)
	require.NoError(t, err)
}

func TestPromListener_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	locker := newTestLocker(t)
	pl, err := NewPromListener(reg, WithLockCount(locker))
	require.NoError(t, err)
	locker.Listen(pl)

	ctx := context.Background()
	for range 3 {
		require.NoError(t, locker.Do(ctx, "k", "prom", func(context.Context) error { return nil }))
	}

	assert.InDelta(t, 3, testutil.ToFloat64(pl.events.WithLabelValues("lock", "string", "false")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pl.events.WithLabelValues("unlock", "string", "false")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(pl.hold, "xlock_hold_duration_seconds"))

	expected := `
# HELP xlock_locks Keys currently in the lock table.
# TYPE xlock_locks gauge
xlock_locks 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "xlock_locks"))
}

func TestPromListener_GaugeWhileHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	locker := newTestLocker(t)
	pl, err := NewPromListener(reg, WithLockCount(locker))
	require.NoError(t, err)
	defer pl.Close()

	lk, err := locker.Acquire(context.Background(), "a", "held")
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(pl.locks), 0)
	require.NoError(t, lk.ReleaseAfter(0))
	assert.Eventually(t, func() bool { return testutil.ToFloat64(pl.locks) == 0 }, time.Second, 5*time.Millisecond)
}
