//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xlock/pkg/debug/xdbg"
)

// exitError 输出已完成，仅需非零退出码
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// usageError 参数错误，退出码 2
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

type executor interface {
	Execute(ctx context.Context, command string, args []string) (*xdbg.Response, error)
}

var newExecutor = func(socket string, timeout time.Duration) executor {
	return xdbg.NewClient(socket, timeout)
}

func clientFrom(cmd *cli.Command) executor {
	return newExecutor(cmd.String("socket"), cmd.Duration("timeout"))
}

func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "exec",
			Aliases:   []string{"x"},
			Usage:     "执行任意调试命令",
			ArgsUsage: "<command> [args...]",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				args := cmd.Args().Slice()
				if len(args) == 0 {
					return &usageError{msg: "exec 需要指定调试命令"}
				}
				return execute(ctx, clientFrom(cmd), os.Stdout, args[0], args[1:])
			},
		},
		{
			Name:  "status",
			Usage: "检查调试服务是否在线",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return status(ctx, clientFrom(cmd), os.Stdout, cmd.String("socket"))
			},
		},
		{
			Name:    "interactive",
			Aliases: []string{"i"},
			Usage:   "交互模式",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return interactive(ctx, clientFrom(cmd), os.Stdin, os.Stdout)
			},
		},
		shortcut("locks", "当前锁及创建现场", "", 0, 0),
		shortcut("lockstat", "锁统计", "[reset]", 0, 1),
		shortcut("lockconf", "查看或修改锁配置", "[name value]", 0, 2),
		shortcut("lockdisable", "禁用锁", "<key>", 1, 1),
		shortcut("listeners", "监听器与熔断状态", "", 0, 0),
		shortcut("setlog", "查看/设置日志级别", "[level]", 0, 1),
		shortcut("stack", "打印所有 goroutine 堆栈", "", 0, 0),
		shortcut("memstats", "内存统计", "", 0, 0),
		shortcut("config", "查看运行时配置", "", 0, 0),
	}
}

// shortcut 等价于 exec <name> [args]，参数个数先在本地校验
func shortcut(name, usage, argsUsage string, minArgs, maxArgs int) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) < minArgs || len(args) > maxArgs {
				return &usageError{msg: fmt.Sprintf("用法: %s %s", name, argsUsage)}
			}
			return execute(ctx, clientFrom(cmd), os.Stdout, name, args)
		},
	}
}

func execute(ctx context.Context, c executor, w io.Writer, command string, args []string) error {
	resp, err := c.Execute(ctx, command, args)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	if resp.Output != "" {
		fmt.Fprint(w, resp.Output)
	}
	if resp.Truncated {
		fmt.Fprintf(os.Stderr, "[输出已截断，原始大小 %d 字节]\n", resp.OriginalSize)
	}
	return nil
}

// status 离线时返回退出码 1，便于脚本与探针判断
func status(ctx context.Context, c executor, w io.Writer, socket string) error {
	resp, err := c.Execute(ctx, "help", nil)
	if err == nil && !resp.Success {
		err = errors.New(resp.Error)
	}
	if err != nil {
		fmt.Fprintf(w, "状态: 离线\nSocket: %s\n详情: %v\n", socket, err)
		return &exitError{code: 1}
	}
	fmt.Fprintf(w, "状态: 在线\nSocket: %s\n", socket)
	return nil
}
