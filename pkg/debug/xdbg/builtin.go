//go:build !windows

package xdbg

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// stackBufLimit stack 命令的缓冲上限
const stackBufLimit = 8 << 20

func (s *Server) registerBuiltins() {
	s.reg.register(NewCommand("help", "列出命令，或 help <cmd> 查看单个命令", s.help))
	s.reg.register(NewCommand("setlog", "查看/设置日志级别 (debug/info/warn/error)", s.setlog))
	s.reg.register(NewCommand("stack", "打印所有 goroutine 堆栈", stack))
	s.reg.register(NewCommand("memstats", "运行时内存与 goroutine 统计", memstats))
	if s.opts.config != nil {
		s.reg.register(NewCommand("config", "查看运行时配置", s.dumpConfig))
	}
}

func (s *Server) help(_ context.Context, args []string) (string, error) {
	if len(args) > 0 {
		cmd := s.reg.get(args[0])
		if cmd == nil || !s.reg.allowed(args[0]) {
			return "", fmt.Errorf("%w: %s", ErrCommandNotFound, args[0])
		}
		return cmd.Name() + " - " + cmd.Help() + "\n", nil
	}
	var b strings.Builder
	b.WriteString("可用命令:\n")
	for _, cmd := range s.reg.list() {
		fmt.Fprintf(&b, "  %-12s %s\n", cmd.Name(), cmd.Help())
	}
	return b.String(), nil
}

func (s *Server) setlog(_ context.Context, args []string) (string, error) {
	if s.opts.leveler == nil {
		return "", fmt.Errorf("xdbg: log leveler not configured")
	}
	if len(args) == 0 {
		return "当前日志级别: " + s.opts.leveler.GetLevel().String() + "\n", nil
	}
	level, err := xlog.ParseLevel(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUsage, err)
	}
	old := s.opts.leveler.GetLevel()
	s.opts.leveler.SetLevel(level)
	return fmt.Sprintf("日志级别: %s -> %s\n", old, level), nil
}

func (s *Server) dumpConfig(_ context.Context, _ []string) (string, error) {
	out, err := json.MarshalIndent(s.opts.config(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("xdbg: marshal config: %w", err)
	}
	return string(out) + "\n", nil
}

func stack(ctx context.Context, _ []string) (string, error) {
	for size := 64 << 10; ; size *= 2 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		buf := make([]byte, size)
		n := runtime.Stack(buf, true)
		if n < size || size >= stackBufLimit {
			return string(buf[:n]), nil
		}
	}
}

func memstats(_ context.Context, _ []string) (string, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	var b strings.Builder
	fmt.Fprintf(&b, "goroutines:   %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "heap_alloc:   %d\n", m.HeapAlloc)
	fmt.Fprintf(&b, "heap_inuse:   %d\n", m.HeapInuse)
	fmt.Fprintf(&b, "heap_objects: %d\n", m.HeapObjects)
	fmt.Fprintf(&b, "sys:          %d\n", m.Sys)
	fmt.Fprintf(&b, "num_gc:       %d\n", m.NumGC)
	return b.String(), nil
}
