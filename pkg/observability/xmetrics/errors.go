package xmetrics

import "errors"

var (
	// ErrCreateInstrument 创建 OTel 指标失败。
	ErrCreateInstrument = errors.New("xmetrics: create instrument failed")
	// ErrRegister 注册 Prometheus 指标失败。
	ErrRegister = errors.New("xmetrics: register collector failed")
	// ErrInvalidBuckets 直方图桶边界无效。
	ErrInvalidBuckets = errors.New("xmetrics: invalid histogram buckets")
)
