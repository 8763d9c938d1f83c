package xkeylock

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const selfPackage = "github.com/omeyang/xlock/pkg/util/xkeylock."

// 被默认过滤的运行时/框架帧前缀
var frameNoise = []string{
	"runtime.",
	"testing.",
	"reflect.",
	"sync.",
	"github.com/stretchr/testify/",
	selfPackage,
}

// DefaultFrameFilter 只保留业务代码帧。
func DefaultFrameFilter(f runtime.Frame) bool {
	for _, p := range frameNoise {
		if strings.HasPrefix(f.Function, p) {
			return false
		}
	}
	return f.Function != ""
}

// captureCallers skip 从 captureCallers 的调用方算起。
func captureCallers(skip, depth int) []uintptr {
	if depth <= 0 {
		return nil
	}
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

func filterFrames(pcs []uintptr, keep func(runtime.Frame) bool) []runtime.Frame {
	if len(pcs) == 0 {
		return nil
	}
	var out []runtime.Frame
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if keep(f) {
			out = append(out, f)
		}
		if !more {
			break
		}
	}
	return out
}

// siteFingerprint 对过滤后的帧（函数名+行号）做哈希，同一创建现场在进程间稳定。
func siteFingerprint(frames []runtime.Frame) uint64 {
	d := xxhash.New()
	for _, f := range frames {
		_, _ = d.WriteString(f.Function)
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(strconv.Itoa(f.Line))
		_, _ = d.WriteString(";")
	}
	return d.Sum64()
}

func formatFrame(f runtime.Frame) string {
	return f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")"
}
