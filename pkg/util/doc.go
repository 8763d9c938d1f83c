// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xkeylock: 基于 key 的进程内可重入锁，支持监控等待、延迟释放、事件监听与现场诊断
package util
