package xlog_test

import (
	"context"
	"log/slog"
	"os"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

func ExampleNew() {
	logger, cleanup, err := xlog.New().
		SetOutput(os.Stdout).
		SetReplaceAttr(func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}).
		Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = cleanup() }()

	logger.Info(context.Background(), "lock acquired", xlog.LockKey("order:1"), xlog.Reason("pay"))
	// Output:
	// level=INFO msg="lock acquired" lock_key=order:1 reason=pay
}
