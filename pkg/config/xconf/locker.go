package xconf

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xlock/pkg/observability/xlog"
	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

// DefaultLockerPath 锁管理器配置段的默认路径。
const DefaultLockerPath = "locker"

// LockerSection 锁管理器配置段。时长字段接受 "10m"、"500ms" 形式。
// 布尔字段用指针区分"未配置"与 false。
type LockerSection struct {
	StrictCompatibility *bool         `koanf:"strict_compatibility" json:"strict_compatibility,omitempty"`
	MonitoredAcquire    *bool         `koanf:"monitored_acquire" json:"monitored_acquire,omitempty"`
	MaxLockAcquireTime  time.Duration `koanf:"max_lock_acquire_time" json:"max_lock_acquire_time,omitempty"`
	MinPollInterval     time.Duration `koanf:"min_poll_interval" json:"min_poll_interval,omitempty"`
	WarnHoldTime        time.Duration `koanf:"warn_hold_time" json:"warn_hold_time,omitempty"`
}

// Merge 将已配置的字段覆盖到 base 上。
// 只配置 max_lock_acquire_time 时，继承的 MinPollInterval 超过其 1/4 会被下调，
// 与 Locker.SetMaxLockAcquireTime 一致；两者都显式配置时不做调整。
func (s LockerSection) Merge(base xkeylock.Config) xkeylock.Config {
	if s.StrictCompatibility != nil {
		base.StrictCompatibility = *s.StrictCompatibility
	}
	if s.MonitoredAcquire != nil {
		base.MonitoredAcquire = *s.MonitoredAcquire
	}
	if s.MaxLockAcquireTime > 0 {
		base.MaxLockAcquireTime = s.MaxLockAcquireTime
	}
	if s.MinPollInterval > 0 {
		base.MinPollInterval = s.MinPollInterval
	} else if s.MaxLockAcquireTime > 0 {
		if limit := max(s.MaxLockAcquireTime/4, time.Nanosecond); base.MinPollInterval > limit {
			base.MinPollInterval = limit
		}
	}
	if s.WarnHoldTime > 0 {
		base.WarnHoldTime = s.WarnHoldTime
	}
	return base
}

// Tunable 可在运行时调整参数的锁管理器，*xkeylock.Locker 满足该接口。
type Tunable interface {
	Config() xkeylock.Config
	ApplyConfig(xkeylock.Config) error
}

var _ Tunable = (*xkeylock.Locker)(nil)

// LoadLocker 读取 path 处的锁管理器配置段。
func LoadLocker(cfg Config, path string) (LockerSection, error) {
	var s LockerSection
	if path == "" {
		path = DefaultLockerPath
	}
	if err := cfg.Unmarshal(path, &s); err != nil {
		return LockerSection{}, err
	}
	return s, nil
}

// BindLocker 读取配置段并应用到 t。校验失败时 t 保持不变。
func BindLocker(cfg Config, path string, t Tunable) error {
	s, err := LoadLocker(cfg, path)
	if err != nil {
		return err
	}
	next := s.Merge(t.Config())
	if err := t.ApplyConfig(next); err != nil {
		return fmt.Errorf("xconf: apply locker section %q: %w", path, err)
	}
	return nil
}

// WatchLocker 先应用一次配置，再监视文件变更并在每次重载成功后重新应用。
// 重载或应用失败只记录日志，锁管理器沿用当前参数。
func WatchLocker(cfg Config, path string, t Tunable, logger xlog.Logger, opts ...WatchOption) (*Watcher, error) {
	if err := BindLocker(cfg, path, t); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = xlog.Default()
	}
	logger = logger.With(xlog.Component("xconf"))
	return Watch(cfg, func(c Config, err error) {
		ctx := context.Background()
		if err != nil {
			logger.Warn(ctx, "config reload failed, keeping current locker settings", xlog.Err(err))
			return
		}
		if err := BindLocker(c, path, t); err != nil {
			logger.Warn(ctx, "locker settings rejected", xlog.Err(err))
			return
		}
		logger.Info(ctx, "locker settings reloaded", xlog.Operation("reload"))
	}, opts...)
}
