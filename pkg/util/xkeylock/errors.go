package xkeylock

import (
	"errors"
	"fmt"
)

var (
	// ErrLockNotHeld 表示 Lock 已被释放。
	// Release 第二次及后续调用时返回此错误。
	ErrLockNotHeld = errors.New("xkeylock: lock not held")

	// ErrIncompatibleKey 严格模式下，持有者已持有可比较但不相等的 key 时返回。
	// 实际返回值为 *CompatibilityError，可用 errors.Is 判断。
	ErrIncompatibleKey = errors.New("xkeylock: incompatible key")

	// ErrUncomparableKey key 的动态类型不可比较（slice、map、func 等）。
	ErrUncomparableKey = errors.New("xkeylock: key is not comparable")

	// ErrNilKey Acquire 的 key 为 nil。
	ErrNilKey = errors.New("xkeylock: nil key")

	// ErrNilOperation Do/WithKeyLock 的回调为 nil。
	ErrNilOperation = errors.New("xkeylock: nil operation")

	// ErrInvalidConfig 配置校验失败。
	ErrInvalidConfig = errors.New("xkeylock: invalid config")

	// ErrListenerPanic 监听器 panic 被恢复后包装为此错误。
	ErrListenerPanic = errors.New("xkeylock: listener panicked")
)

// CompatibilityError 记录一次兼容性冲突。
type CompatibilityError struct {
	// Held 已持有的 key
	Held any
	// Requested 本次请求的 key
	Requested any
	// Holder 已持有锁的诊断摘要
	Holder string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("xkeylock: locking %v while holding comparable key %v: %s", e.Requested, e.Held, e.Holder)
}

func (e *CompatibilityError) Unwrap() error {
	return ErrIncompatibleKey
}
