//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xlock/pkg/debug/xdbg"
)

// syncBuffer 日志由多个 goroutine 并发写入
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quickConfig() benchConfig {
	return benchConfig{
		Workers:   4,
		Keys:      2,
		Hold:      100 * time.Microsecond,
		Duration:  200 * time.Millisecond,
		Nested:    0.5,
		LogLevel:  "warn",
		LogFormat: "json",
	}
}

func TestBenchConfig_Validate(t *testing.T) {
	base := quickConfig()
	require.NoError(t, base.validate())

	for name, mutate := range map[string]func(*benchConfig){
		"workers":  func(c *benchConfig) { c.Workers = 0 },
		"keys":     func(c *benchConfig) { c.Keys = -1 },
		"hold":     func(c *benchConfig) { c.Hold = -time.Second },
		"duration": func(c *benchConfig) { c.Duration = 0 },
		"nested":   func(c *benchConfig) { c.Nested = 1.5 },
	} {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.validate())
		})
	}
}

func TestRunBench(t *testing.T) {
	var logs syncBuffer
	res, err := runBench(context.Background(), quickConfig(), &logs, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Positive(t, res.Ops)
	assert.Positive(t, res.Nested)
	// 截止时被中断的操作已加锁但不计入 Ops
	assert.GreaterOrEqual(t, res.Stats.LockCount, res.Ops)
	assert.Zero(t, res.Stats.CurrentCount)
	assert.GreaterOrEqual(t, res.Stats.MaxDepth, 1)
	assert.Contains(t, res.Instruments, "xlock.lock.events")
	assert.Contains(t, res.Instruments, "xlock.lock.hold.duration")
}

func TestRunBench_InvalidArgs(t *testing.T) {
	c := quickConfig()
	c.LogLevel = "loud"
	_, err := runBench(context.Background(), c, &bytes.Buffer{}, &bytes.Buffer{})
	var ue *usageError
	require.ErrorAs(t, err, &ue)

	c = quickConfig()
	c.Report = "not a cron"
	_, err = runBench(context.Background(), c, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorAs(t, err, &ue)
}

func TestRunBench_ConfigAndDebugServer(t *testing.T) {
	dir, err := os.MkdirTemp("", "xlb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfgPath := filepath.Join(dir, "locker.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("locker:\n  warn_hold_time: 1m\n"), 0o600))
	sock := filepath.Join(dir, "d.sock")

	c := quickConfig()
	c.Duration = time.Second
	c.ConfigPath = cfgPath
	c.Socket = sock
	c.MetricsAddr = "127.0.0.1:0"
	c.Progress = 100 * time.Millisecond

	type result struct {
		res *benchResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := runBench(context.Background(), c, &syncBuffer{}, &bytes.Buffer{})
		done <- result{res, err}
	}()

	client := xdbg.NewClient(sock, time.Second)
	require.Eventually(t, func() bool { return client.Ping(context.Background()) == nil },
		time.Second, 10*time.Millisecond)

	resp, err := client.Execute(context.Background(), "lockconf", nil)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, resp.Output, "1m0s")

	r := <-done
	require.NoError(t, r.err)
	assert.Positive(t, r.res.Ops)
	_, statErr := os.Stat(sock)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrintResult(t *testing.T) {
	res := &benchResult{Ops: 10, Nested: 2, Elapsed: time.Second, OpsPerS: 10, Instruments: []string{"a"}}

	var text bytes.Buffer
	require.NoError(t, printResult(&text, res, false))
	assert.Contains(t, text.String(), "ops: 10 (nested 2)")

	var js bytes.Buffer
	require.NoError(t, printResult(&js, res, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.EqualValues(t, 10, decoded["ops"])
}
