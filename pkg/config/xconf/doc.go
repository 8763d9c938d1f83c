// Package xconf 基于 koanf 的配置加载，支持 YAML/JSON 与文件热更新。
//
// 锁管理器的运行时参数放在配置文件的 locker 段：
//
//	locker:
//	  strict_compatibility: false
//	  monitored_acquire: true
//	  max_lock_acquire_time: 10m
//	  min_poll_interval: 5s
//	  warn_hold_time: 30s
//
// [BindLocker] 立即应用该段，[WatchLocker] 在每次文件变更重载成功后重新应用。
// 未填写的时长字段保留锁管理器当前值。
package xconf
