// Package xowner 提供执行上下文的持有者标识。
//
// Go 没有可用的 goroutine 标识，可重入锁需要的"当前线程"语义由 Owner 承担：
// Owner 挂在 context.Context 上随调用链传递，同一 Owner 重复加锁即视为重入。
//
// # 使用约定
//
//   - 顶层调用传入不带 Owner 的 ctx 时，由锁管理器通过 [Ensure] 创建新 Owner
//   - 嵌套调用必须使用锁管理器回传的 ctx，否则会被当作另一个持有者
//   - 多个 goroutine 共享同一个带 Owner 的 ctx 时，它们共享同一个持有身份
//     （也共享可重入性）；需要独立身份时使用 [With] 派生
//
// Owner 还维护一个持有栈（按获取顺序记录当前持有的锁），仅用于诊断。
package xowner
