package xkeylock

import (
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

const (
	defaultTraceDepth      = 32
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = time.Minute
)

// Option 定义 Locker 可选配置。
type Option func(*options)

type options struct {
	logger          xlog.Logger
	config          Config
	comparable      func(held, requested any) bool
	checkOnJoin     bool
	frameFilter     func(runtime.Frame) bool
	traceDepth      int
	breakerFailures uint32
	breakerTimeout  time.Duration
}

func defaultOptions() options {
	return options{
		config:          DefaultConfig(),
		comparable:      SameKind,
		frameFilter:     DefaultFrameFilter,
		traceDepth:      defaultTraceDepth,
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
	}
}

// WithLogger 设置日志器，默认使用 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConfig 设置初始配置，New 时校验。
func WithConfig(c Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithComparable 设置 key 可比较性谓词，用于兼容性诊断。
// 谓词返回 true 表示 held 与 requested 属于同一类资源。nil 被忽略。
func WithComparable(fn func(held, requested any) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.comparable = fn
		}
	}
}

// WithCheckOnJoin 加入已存在的锁时也执行兼容性诊断。
// 默认只在新建锁时诊断。
func WithCheckOnJoin(enable bool) Option {
	return func(o *options) {
		o.checkOnJoin = enable
	}
}

// WithFrameFilter 设置创建现场堆栈的帧过滤器，返回 true 的帧保留。
func WithFrameFilter(fn func(runtime.Frame) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.frameFilter = fn
		}
	}
}

// WithTraceDepth 设置创建现场最多记录的栈帧数，0 表示不记录。
func WithTraceDepth(n int) Option {
	return func(o *options) {
		o.traceDepth = n
	}
}

// WithListenerBreaker 设置监听器熔断：连续失败 failures 次后跳过该监听器，
// 经过 openTimeout 后半开重试。
func WithListenerBreaker(failures uint32, openTimeout time.Duration) Option {
	return func(o *options) {
		o.breakerFailures = failures
		o.breakerTimeout = openTimeout
	}
}

func (o *options) validate() error {
	if err := o.config.Validate(); err != nil {
		return err
	}
	if o.traceDepth < 0 {
		return fmt.Errorf("%w: trace depth must not be negative, got %d", ErrInvalidConfig, o.traceDepth)
	}
	if o.breakerFailures == 0 || o.breakerTimeout <= 0 {
		return fmt.Errorf("%w: listener breaker needs positive failures and timeout", ErrInvalidConfig)
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return nil
}

// KeyTyper 由希望自定义"资源类别"的 key 实现。
type KeyTyper interface {
	KeyType() string
}

// SameKind 默认可比较性谓词：
// 两个 key 都实现 KeyTyper 时比较 KeyType()，否则比较动态类型。
func SameKind(held, requested any) bool {
	ht, hok := held.(KeyTyper)
	rt, rok := requested.(KeyTyper)
	if hok && rok {
		return ht.KeyType() == rt.KeyType()
	}
	if hok != rok {
		return false
	}
	return reflect.TypeOf(held) == reflect.TypeOf(requested)
}

// KeyTypeOf 返回 key 的类别名，用于指标标签。
func KeyTypeOf(key any) string {
	if kt, ok := key.(KeyTyper); ok {
		return kt.KeyType()
	}
	if key == nil {
		return "nil"
	}
	return reflect.TypeOf(key).String()
}
