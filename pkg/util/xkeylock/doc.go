// Package xkeylock 提供按 key 互斥的进程内可重入锁管理器。
//
// 任意可比较值都可以作为 key（实体 ID、复合结构体等），key 相等即同一把锁。
//
//	locker, err := xkeylock.New(xkeylock.WithLogger(logger))
//	err = locker.Do(ctx, orderID, "pay", func(ctx context.Context) error {
//		// 嵌套调用必须使用这里的 ctx 才能重入
//		return locker.Do(ctx, orderID, "audit", audit)
//	})
//
// # 持有者与重入
//
// 重入身份由 ctx 携带（见 xowner）。不带持有者的 ctx 进入 Do/Acquire 时会创建新的
// 持有者，回调拿到的 ctx 带有该持有者；同一持有者重复加锁只增加持有计数，
// 最外层释放时才真正解锁并考虑从锁表中移除。
//
// 共享同一个 ctx 的 goroutine 共享持有者，彼此之间视为重入而不互斥。
// 在锁内启动 goroutine（如 errgroup 扇出）时，应先用 xowner.With 为每个
// goroutine 派生独立的持有者：
//
//	g, gctx := errgroup.WithContext(ctx)
//	for _, item := range items {
//		g.Go(func() error {
//			ctx, _ := xowner.With(gctx, "worker")
//			return locker.Do(ctx, item.Key, "sync", handle)
//		})
//	}
//
// # 获取策略
//
//   - 阻塞模式（默认）：无限等待，ctx 取消时返回 ctx.Err()
//   - 监控模式：从 MinPollInterval 开始按倍数增长的分片等待（上限 8 倍），
//     每次分片超时都记录等待时长、全部锁摘要和当前持有者诊断信息；
//     累计等待超过 MaxLockAcquireTime 后放弃等待，在不持锁的情况下继续执行，
//     并记录一条 Warn。这是以互斥性换取可用性的降级路径
//
// [WithMonitorTime] 可以对单次调用强制启用监控模式。
//
// # 兼容性诊断
//
// 新建锁时扫描当前持有者的持有栈：若已持有一把与新 key "可比较"但不相等的锁，
// 严格模式下返回 [ErrIncompatibleKey]，宽松模式下记录 Warn。
// 可比较性由 [WithComparable] 注入，默认 [SameKind]。
//
// # 监听器
//
// [Locker.Listen] 注册 [Listener]，在最外层加锁/解锁时同步回调（重入不产生事件）。
// 每个监听器有独立的 panic 隔离和熔断器，异常的监听器不会影响加解锁流程。
//
// # nil key
//
// Do 收到 nil key 时记录 Warn 并直接执行回调（不加锁）；Acquire 返回 [ErrNilKey]。
package xkeylock
