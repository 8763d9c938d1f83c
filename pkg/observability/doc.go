// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，自动附加当前锁持有者
//   - xmetrics: 锁事件监听器，导出 OpenTelemetry 与 Prometheus 指标
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 只在最外层加锁/解锁时记录，重入不产生额外事件
//   - 支持动态级别控制
package observability
