package xkeylock

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxLockAcquireTime = 10 * time.Minute
	DefaultMinPollInterval    = 5 * time.Second
	DefaultWarnHoldTime       = 30 * time.Second

	// pollCapFactor 监控模式单次等待的上限倍数
	pollCapFactor = 8
)

// Config 运行时可调的锁配置。
type Config struct {
	// StrictCompatibility 兼容性冲突时返回错误而非仅记录 Warn
	StrictCompatibility bool
	// MonitoredAcquire 使用监控模式获取锁
	MonitoredAcquire bool
	// MaxLockAcquireTime 监控模式下放弃等待的累计时长
	MaxLockAcquireTime time.Duration
	// MinPollInterval 监控模式首个等待分片，同时是获取耗时升级为 Info 日志的阈值
	MinPollInterval time.Duration
	// WarnHoldTime 新建锁的默认告警持有时长，超过时释放日志升级为 Warn
	WarnHoldTime time.Duration
}

// DefaultConfig 返回默认配置：宽松、阻塞模式、10m/5s/30s。
func DefaultConfig() Config {
	return Config{
		MaxLockAcquireTime: DefaultMaxLockAcquireTime,
		MinPollInterval:    DefaultMinPollInterval,
		WarnHoldTime:       DefaultWarnHoldTime,
	}
}

// Validate 校验时长均为正，且 MinPollInterval 不超过 MaxLockAcquireTime。
func (c Config) Validate() error {
	switch {
	case c.MaxLockAcquireTime <= 0:
		return fmt.Errorf("%w: max lock acquire time must be positive, got %s", ErrInvalidConfig, c.MaxLockAcquireTime)
	case c.MinPollInterval <= 0:
		return fmt.Errorf("%w: min poll interval must be positive, got %s", ErrInvalidConfig, c.MinPollInterval)
	case c.WarnHoldTime <= 0:
		return fmt.Errorf("%w: warn hold time must be positive, got %s", ErrInvalidConfig, c.WarnHoldTime)
	case c.MinPollInterval > c.MaxLockAcquireTime:
		return fmt.Errorf("%w: min poll interval %s exceeds max lock acquire time %s",
			ErrInvalidConfig, c.MinPollInterval, c.MaxLockAcquireTime)
	}
	return nil
}

// runtimeConfig 热路径只做原子读
type runtimeConfig struct {
	strict     atomic.Bool
	monitored  atomic.Bool
	maxAcquire atomic.Int64
	minPoll    atomic.Int64
	warnHold   atomic.Int64
}

func (r *runtimeConfig) store(c Config) {
	r.strict.Store(c.StrictCompatibility)
	r.monitored.Store(c.MonitoredAcquire)
	r.maxAcquire.Store(int64(c.MaxLockAcquireTime))
	r.minPoll.Store(int64(c.MinPollInterval))
	r.warnHold.Store(int64(c.WarnHoldTime))
}

func (r *runtimeConfig) load() Config {
	return Config{
		StrictCompatibility: r.strict.Load(),
		MonitoredAcquire:    r.monitored.Load(),
		MaxLockAcquireTime:  time.Duration(r.maxAcquire.Load()),
		MinPollInterval:     time.Duration(r.minPoll.Load()),
		WarnHoldTime:        time.Duration(r.warnHold.Load()),
	}
}

// Config 返回当前配置快照。
func (l *Locker) Config() Config {
	return l.cfg.load()
}

// ApplyConfig 校验并整体替换配置。已在等待中的监控获取不受影响。
func (l *Locker) ApplyConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	l.cfg.store(c)
	return nil
}

func (l *Locker) StrictCompatibility() bool { return l.cfg.strict.Load() }

func (l *Locker) SetStrictCompatibility(v bool) { l.cfg.strict.Store(v) }

func (l *Locker) MonitoredAcquire() bool { return l.cfg.monitored.Load() }

func (l *Locker) SetMonitoredAcquire(v bool) { l.cfg.monitored.Store(v) }

func (l *Locker) MaxLockAcquireTime() time.Duration {
	return time.Duration(l.cfg.maxAcquire.Load())
}

// SetMaxLockAcquireTime 设置放弃等待的累计时长。
// MinPollInterval 超过 d/4 时被下调到 d/4。
func (l *Locker) SetMaxLockAcquireTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: max lock acquire time must be positive, got %s", ErrInvalidConfig, d)
	}
	l.cfg.maxAcquire.Store(int64(d))
	if limit := max(d/4, time.Nanosecond); time.Duration(l.cfg.minPoll.Load()) > limit {
		l.cfg.minPoll.Store(int64(limit))
	}
	return nil
}

func (l *Locker) MinPollInterval() time.Duration {
	return time.Duration(l.cfg.minPoll.Load())
}

// SetMinPollInterval 设置监控模式首个等待分片，不得超过 MaxLockAcquireTime。
func (l *Locker) SetMinPollInterval(d time.Duration) error {
	if d <= 0 || d > l.MaxLockAcquireTime() {
		return fmt.Errorf("%w: min poll interval %s out of range (0, %s]", ErrInvalidConfig, d, l.MaxLockAcquireTime())
	}
	l.cfg.minPoll.Store(int64(d))
	return nil
}

func (l *Locker) WarnHoldTime() time.Duration {
	return time.Duration(l.cfg.warnHold.Load())
}

// SetWarnHoldTime 只影响之后新建的锁。
func (l *Locker) SetWarnHoldTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: warn hold time must be positive, got %s", ErrInvalidConfig, d)
	}
	l.cfg.warnHold.Store(int64(d))
	return nil
}
