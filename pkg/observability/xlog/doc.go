// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
// 使用 Builder（first-error-wins：第一个配置错误之后的 Set 调用被跳过）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevel(xlog.LevelDebug).
//		SetFormat("json").
//		SetRotation("/var/log/app/lock.log", xlog.WithMaxSize(100)).
//		Build()
//
// Build 返回的 cleanup 负责关闭轮转文件，可重复调用。
//
// # 上下文注入
//
// 默认启用 [EnrichHandler]：ctx 中带有锁持有者（xowner）时，自动写入
// lock_owner 和 lock_depth 字段。
//
// # 全局 Logger
//
// [Default] 惰性初始化（stderr、Info、text）。库代码在未注入 Logger 时使用它。
// [SetDefault] 替换，[ResetDefault] 仅用于测试。
//
// # 动态级别
//
// [Leveler] 与 [Logger] 分离；Build 返回二者的组合 [LoggerWithLevel]。
// 派生 logger 共享 LevelVar，级别变更同步生效。调试服务的 setlog 命令依赖此能力。
package xlog
