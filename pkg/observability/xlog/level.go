package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，与 slog.Level 数值一致
//
// 可以直接转换为 slog.Level 交给 slog.HandlerOptions，
// 也可以作为配置字段由 YAML/JSON 反序列化。
type Level slog.Level

// 日志级别常量。锁管理器的诊断日志按以下约定选级别：
// 获取与释放细节为 Debug，监控模式的分片超时为 Info，
// 超时放弃、兼容性冲突与慢释放为 Warn。
const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// String 返回级别的字符串表示
//
// 标准级别返回大写名称（DEBUG/INFO/WARN/ERROR），与文本日志中的 level 字段一致；
// 非标准级别委托给 slog.Level.String()（如 "INFO+2"）。
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return slog.Level(l).String()
}

// MarshalText 实现 encoding.TextMarshaler 接口
//
// 配置序列化为 JSON/YAML 时，级别以名称而非数值呈现。
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler 接口
//
// 支持从配置文件直接反序列化日志级别，解析规则同 ParseLevel。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析字符串为日志级别
//
// 支持 debug/info/warn/warning/error（大小写不敏感），输入会先 TrimSpace。
// 调试服务的 setlog 命令与 xlockbench 的 --log-level 都经过这里；
// 无法识别时返回 LevelInfo 和错误，调用方应保持原级别不变。
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}
