package xlog

import (
	"fmt"
	"log/slog"
	"time"
)

// 常用字段 key
const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyLockKey   = "lock_key"
	KeyReason    = "reason"
)

// Err 错误属性，err 为 nil 时返回空属性（slog 会忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 耗时属性，人类可读格式（"1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// LockKey 锁 key 属性。key 可以是任意可比较值，统一按 %v 输出
func LockKey(key any) slog.Attr {
	if s, ok := key.(string); ok {
		return slog.String(KeyLockKey, s)
	}
	return slog.String(KeyLockKey, fmt.Sprintf("%v", key))
}

// Reason 加锁原因属性
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}
