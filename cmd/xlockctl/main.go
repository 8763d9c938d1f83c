//go:build !windows

// xlockctl 是锁管理器调试服务的命令行客户端。
//
// 用法:
//
//	xlockctl [-s socket] [-t timeout] <命令> [参数]
//
// 退出码:
//
//	0: 成功（status: 在线）
//	1: 命令失败或服务离线
//	2: 参数错误
//
// 示例:
//
//	xlockctl locks
//	xlockctl lockconf monitored_acquire true
//	xlockctl lockdisable order-42
//	xlockctl -s /tmp/bench.sock interactive
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xlock/pkg/debug/xdbg"
)

const defaultTimeout = 30 * time.Second

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xlockctl",
		Usage:   "锁管理器调试客户端",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Unix Socket 路径",
				Value:   xdbg.DefaultSocketPath,
				Sources: cli.EnvVars("XLOCK_SOCKET"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands: createCommands(),
		// 退出码统一由 run 映射，这里不调用 os.Exit
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := handleSignals(cancel)
	defer stop()

	err := createApp().Run(ctx, args)
	if err == nil {
		return 0
	}
	var (
		ee *exitError
		ue *usageError
	)
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &ue):
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", ue)
		return 2
	case isCLIUsageError(err):
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

// isCLIUsageError urfave/cli 的未知 flag 与非法取值
func isCLIUsageError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "invalid value")
}

// handleSignals 第一次信号取消 ctx，第二次强制退出。
func handleSignals(cancel context.CancelFunc) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			os.Exit(130)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
