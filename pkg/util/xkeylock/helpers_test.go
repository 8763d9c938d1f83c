package xkeylock

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// logBuffer 并发安全的日志缓冲
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Count(substr string) int {
	return strings.Count(b.String(), substr)
}

func newTestLocker(t *testing.T, opts ...Option) (*Locker, *logBuffer) {
	t.Helper()
	buf := &logBuffer{}
	logger, _, err := xlog.New().SetOutput(buf).SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	l, err := New(append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return l, buf
}

// fastMonitor 监控模式的短时配置
func fastMonitor(maxAcquire, minPoll time.Duration) Config {
	c := DefaultConfig()
	c.MonitoredAcquire = true
	c.MaxLockAcquireTime = maxAcquire
	c.MinPollInterval = minPoll
	return c
}

// holdKey 在另一个持有者上持有 key，直到调用返回的 release。
func holdKey(t *testing.T, l *Locker, key any) (release func()) {
	t.Helper()
	acquired := make(chan struct{})
	releaseCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Do(context.Background(), key, "background", func(context.Context) error {
			close(acquired)
			<-releaseCh
			return nil
		})
	}()
	<-acquired
	var once sync.Once
	release = func() {
		once.Do(func() {
			close(releaseCh)
			<-done
		})
	}
	t.Cleanup(release)
	return release
}
