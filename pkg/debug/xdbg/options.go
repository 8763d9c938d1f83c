package xdbg

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

const (
	DefaultSocketPath            = "/var/run/xlock.sock"
	DefaultSocketPerm            = os.FileMode(0o600)
	DefaultMaxSessions           = 1
	DefaultMaxConcurrentCommands = 5
	DefaultCommandTimeout        = 30 * time.Second
	DefaultSessionReadTimeout    = 60 * time.Second
	DefaultSessionWriteTimeout   = 30 * time.Second
	DefaultSessionWaitTimeout    = 3 * time.Second
	DefaultShutdownTimeout       = 10 * time.Second

	maxSessions           = 256
	maxConcurrentCommands = 1024
)

type options struct {
	socketPath      string
	socketPerm      os.FileMode
	maxSessions     int
	maxCommands     int
	commandTimeout  time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	sessionWait     time.Duration
	shutdownTimeout time.Duration
	maxOutput       int
	whitelist       []string
	logger          xlog.Logger
	leveler         xlog.Leveler
	config          func() map[string]any
}

// Option 服务器选项。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		socketPath:      DefaultSocketPath,
		socketPerm:      DefaultSocketPerm,
		maxSessions:     DefaultMaxSessions,
		maxCommands:     DefaultMaxConcurrentCommands,
		commandTimeout:  DefaultCommandTimeout,
		readTimeout:     DefaultSessionReadTimeout,
		writeTimeout:    DefaultSessionWriteTimeout,
		sessionWait:     DefaultSessionWaitTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		maxOutput:       DefaultMaxOutputSize,
	}
}

func WithSocketPath(path string) Option { return func(o *options) { o.socketPath = path } }

func WithSocketPerm(perm os.FileMode) Option { return func(o *options) { o.socketPerm = perm } }

// WithMaxSessions 最大并发会话数。会话已满时新连接排队等待，
// 超过 WithSessionWaitTimeout 仍无空位则收到 ErrTooManySessions 后被关闭。
func WithMaxSessions(n int) Option { return func(o *options) { o.maxSessions = n } }

// WithSessionWaitTimeout 会话已满时新连接的最长等待时间，0 表示立即拒绝。
func WithSessionWaitTimeout(d time.Duration) Option { return func(o *options) { o.sessionWait = d } }

func WithMaxConcurrentCommands(n int) Option { return func(o *options) { o.maxCommands = n } }

// WithCommandTimeout 单条命令超时，依赖命令自身响应 ctx。
func WithCommandTimeout(d time.Duration) Option { return func(o *options) { o.commandTimeout = d } }

func WithSessionReadTimeout(d time.Duration) Option { return func(o *options) { o.readTimeout = d } }

func WithSessionWriteTimeout(d time.Duration) Option { return func(o *options) { o.writeTimeout = d } }

func WithShutdownTimeout(d time.Duration) Option { return func(o *options) { o.shutdownTimeout = d } }

// WithMaxOutputSize 超出部分被截断，响应中 Truncated 为 true。
func WithMaxOutputSize(n int) Option { return func(o *options) { o.maxOutput = n } }

// WithCommandWhitelist nil 表示全部允许；空切片只允许 help。
func WithCommandWhitelist(names []string) Option {
	return func(o *options) { o.whitelist = names }
}

// WithLogger 审计与错误日志，默认 xlog.Default()。
func WithLogger(l xlog.Logger) Option { return func(o *options) { o.logger = l } }

// WithLeveler setlog 命令调整的日志级别。
func WithLeveler(l xlog.Leveler) Option { return func(o *options) { o.leveler = l } }

// WithConfig config 命令输出的配置快照，实现方负责脱敏。
func WithConfig(fn func() map[string]any) Option { return func(o *options) { o.config = fn } }

func (o *options) validate() error {
	switch {
	case o.socketPath == "" || !filepath.IsAbs(o.socketPath):
		return fmt.Errorf("%w: socket path must be absolute, got %q", ErrInvalidOption, o.socketPath)
	case o.socketPerm == 0 || o.socketPerm&0o007 != 0:
		return fmt.Errorf("%w: socket perm %o must not be world accessible", ErrInvalidOption, o.socketPerm)
	case o.maxSessions <= 0 || o.maxSessions > maxSessions:
		return fmt.Errorf("%w: max sessions must be in [1, %d]", ErrInvalidOption, maxSessions)
	case o.maxCommands <= 0 || o.maxCommands > maxConcurrentCommands:
		return fmt.Errorf("%w: max concurrent commands must be in [1, %d]", ErrInvalidOption, maxConcurrentCommands)
	case o.commandTimeout <= 0 || o.shutdownTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidOption)
	case o.readTimeout < 0 || o.writeTimeout < 0 || o.sessionWait < 0:
		return fmt.Errorf("%w: session timeouts must not be negative", ErrInvalidOption)
	case o.maxOutput <= 0 || o.maxOutput > DefaultMaxOutputSize:
		return fmt.Errorf("%w: max output size must be in [1, %d]", ErrInvalidOption, DefaultMaxOutputSize)
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return nil
}
