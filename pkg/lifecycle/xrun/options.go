package xrun

import (
	"os"
	"os/signal"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// Option 配置 Group。
type Option func(*groupOptions)

type groupOptions struct {
	logger  xlog.Logger
	name    string
	signals []os.Signal
	// notify 测试中替换 signal.Notify
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
}

func defaultOptions() *groupOptions {
	return &groupOptions{
		logger: xlog.Default(),
		name:   "xrun",
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// WithLogger 记录服务启停，默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *groupOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName 日志中的 group 名称，默认 "xrun"。
func WithName(name string) Option {
	return func(o *groupOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 收到任一信号时以 *SignalError 取消 Group。
// 不设置则不监听信号。
func WithSignals(sig ...os.Signal) Option {
	copied := append([]os.Signal(nil), sig...)
	return func(o *groupOptions) {
		o.signals = copied
	}
}
