// Package xmetrics 把锁事件导出为指标。
//
// 两种导出方式都实现 xkeylock.Listener，通过 Locker.Listen 注册：
//
//	ol, _ := xmetrics.NewOTelListener(xmetrics.WithLockCount(locker))
//	locker.Listen(ol)
//
//	pl, _ := xmetrics.NewPromListener(prometheus.DefaultRegisterer, xmetrics.WithLockCount(locker))
//	locker.Listen(pl)
//
// # 指标命名
//
// OpenTelemetry：
//   - xlock.lock.events（event / key_type / nested）
//   - xlock.lock.acquire.duration、xlock.lock.hold.duration（秒，key_type）
//   - xlock.lock.count（当前锁表大小）
//
// Prometheus：
//   - xlock_events_total、xlock_hold_duration_seconds、xlock_locks
//
// key_type 取 key 的类型名而非 key 本身，避免高基数。
// ctx 中存在正在记录的 span 时，另外添加 xlock.acquired / xlock.released 事件。
package xmetrics
