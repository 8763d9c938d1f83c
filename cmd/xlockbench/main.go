//go:build !windows

// xlockbench 对锁管理器做并发压测，同时挂载配置热更新、调试服务与指标导出，
// 便于在压测过程中用 xlockctl 观察与调整。
//
// 示例:
//
//	xlockbench run --workers 32 --keys 8 --hold 2ms --duration 30s \
//	    --config locker.yaml --socket /tmp/xlock.sock --metrics-addr :9090
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

var Version = "0.1.0-dev"

// usageError 参数错误，退出码 2
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	err := createApp().Run(ctx, args)
	if err == nil {
		return 0
	}
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", ue)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:           "xlockbench",
		Usage:          "键控可重入锁压测工具",
		Version:        Version,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "执行压测",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 16, Usage: "并发 goroutine 数"},
					&cli.IntFlag{Name: "keys", Aliases: []string{"k"}, Value: 4, Usage: "key 空间大小"},
					&cli.DurationFlag{Name: "hold", Value: time.Millisecond, Usage: "每次持锁时长"},
					&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: 10 * time.Second, Usage: "压测时长"},
					&cli.FloatFlag{Name: "nested", Value: 0.1, Usage: "重入概率 [0, 1]"},
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "锁配置文件（yaml/json），修改后自动生效"},
					&cli.StringFlag{Name: "socket", Aliases: []string{"s"}, Usage: "调试服务 Unix Socket 路径，为空不启动"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "Prometheus 指标监听地址，为空不启动"},
					&cli.BoolFlag{Name: "trace", Usage: "以 JSON 输出 span 到 stdout"},
					&cli.DurationFlag{Name: "progress", Usage: "进度日志间隔，0 表示不输出"},
					&cli.StringFlag{Name: "report", Usage: "慢锁巡检 cron 表达式，如 @every 10s"},
					&cli.DurationFlag{Name: "stale-after", Value: 30 * time.Second, Usage: "巡检时持有超过该时长的锁会被输出"},
					&cli.StringFlag{Name: "log-level", Value: "info", Usage: "日志级别"},
					&cli.StringFlag{Name: "log-format", Value: "text", Usage: "日志格式 text/json"},
					&cli.BoolFlag{Name: "json", Usage: "以 JSON 输出结果"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					bc := benchConfig{
						Workers:     int(cmd.Int("workers")),
						Keys:        int(cmd.Int("keys")),
						Hold:        cmd.Duration("hold"),
						Duration:    cmd.Duration("duration"),
						Nested:      cmd.Float("nested"),
						ConfigPath:  cmd.String("config"),
						Socket:      cmd.String("socket"),
						MetricsAddr: cmd.String("metrics-addr"),
						Trace:       cmd.Bool("trace"),
						Progress:    cmd.Duration("progress"),
						Report:      cmd.String("report"),
						StaleAfter:  cmd.Duration("stale-after"),
						LogLevel:    cmd.String("log-level"),
						LogFormat:   cmd.String("log-format"),
					}
					res, err := runBench(ctx, bc, os.Stderr, os.Stdout)
					if err != nil {
						return err
					}
					return printResult(os.Stdout, res, cmd.Bool("json"))
				},
			},
		},
	}
}
