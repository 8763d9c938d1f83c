package xdbg

import "errors"

var (
	ErrNotRunning       = errors.New("xdbg: debug server is not running")
	ErrAlreadyRunning   = errors.New("xdbg: debug server is already running")
	ErrCommandNotFound  = errors.New("xdbg: command not found")
	ErrCommandForbidden = errors.New("xdbg: command is forbidden")
	ErrTimeout          = errors.New("xdbg: command execution timeout")
	ErrTooManySessions  = errors.New("xdbg: too many concurrent sessions")
	ErrTooManyCommands  = errors.New("xdbg: too many concurrent commands")
	ErrInvalidMessage   = errors.New("xdbg: invalid message format")
	ErrMessageTooLarge  = errors.New("xdbg: message too large")
	ErrConnectionClosed = errors.New("xdbg: connection closed")
	ErrInvalidOption    = errors.New("xdbg: invalid option")
	// ErrUsage 命令参数错误，命令实现应包装该错误。
	ErrUsage = errors.New("xdbg: usage")
)
