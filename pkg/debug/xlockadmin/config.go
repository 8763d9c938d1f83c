package xlockadmin

import (
	"fmt"
	"time"
)

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidDuration, err)
	}
	return d, nil
}

// MaxLockAcquireTime 形如 "10m0s"。
func (a *Admin) MaxLockAcquireTime() string { return a.locker.MaxLockAcquireTime().String() }

// SetMaxLockAcquireTime 接受 time.ParseDuration 格式。
func (a *Admin) SetMaxLockAcquireTime(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	return a.locker.SetMaxLockAcquireTime(d)
}

func (a *Admin) MinPollInterval() string { return a.locker.MinPollInterval().String() }

func (a *Admin) SetMinPollInterval(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	return a.locker.SetMinPollInterval(d)
}

func (a *Admin) WarnHoldTime() string { return a.locker.WarnHoldTime().String() }

func (a *Admin) SetWarnHoldTime(s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	return a.locker.SetWarnHoldTime(d)
}

// Monitor 是否使用监控模式获取锁。
func (a *Admin) Monitor() bool { return a.locker.MonitoredAcquire() }

func (a *Admin) SetMonitor(v bool) { a.locker.SetMonitoredAcquire(v) }

// StrictlyOne 兼容性冲突时是否拒绝加锁。
func (a *Admin) StrictlyOne() bool { return a.locker.StrictCompatibility() }

func (a *Admin) SetStrictlyOne(v bool) { a.locker.SetStrictCompatibility(v) }

// ConfigMap 当前配置，键与配置文件 locker 段一致。
func (a *Admin) ConfigMap() map[string]any {
	return map[string]any{
		"strict_compatibility":  a.StrictlyOne(),
		"monitored_acquire":     a.Monitor(),
		"max_lock_acquire_time": a.MaxLockAcquireTime(),
		"min_poll_interval":     a.MinPollInterval(),
		"warn_hold_time":        a.WarnHoldTime(),
	}
}
