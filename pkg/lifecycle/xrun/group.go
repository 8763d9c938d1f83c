package xrun

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// Group 基于 errgroup 协调多个服务的运行与关闭。
//
// Go 与 Cancel 可并发调用，Wait 只应调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions

	// 信号监听不计入 errgroup，Wait 结束时通知其退出
	done    chan struct{}
	sigDone chan struct{}
}

// NewGroup 创建 Group 并返回派生 context，任一服务返回错误时该 context 被取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	g := &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		opts:     o,
		done:     make(chan struct{}),
		sigDone:  make(chan struct{}),
	}
	if len(o.signals) > 0 {
		go g.watchSignals()
	} else {
		close(g.sigDone)
	}
	return g, egCtx
}

func (g *Group) watchSignals() {
	defer close(g.sigDone)
	sigCh := make(chan os.Signal, 1)
	g.opts.notify(sigCh, g.opts.signals...)
	defer g.opts.stop(sigCh)

	select {
	case sig := <-sigCh:
		g.opts.logger.Info(g.ctx, "received signal",
			slog.String("group", g.opts.name), slog.String("signal", sig.String()))
		g.cancel(&SignalError{Signal: sig})
	case <-g.ctx.Done():
	case <-g.done:
	}
}

// Go 以 name 启动服务。fn 应在 ctx 结束时返回。
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		g.opts.logger.Debug(g.ctx, "service starting",
			slog.String("group", g.opts.name), slog.String("service", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn(g.ctx, "service exited with error",
				slog.String("group", g.opts.name), slog.String("service", name), xlog.Err(err))
		} else {
			g.opts.logger.Debug(g.ctx, "service stopped",
				slog.String("group", g.opts.name), slog.String("service", name))
		}
		return err
	})
}

// Wait 等待全部服务返回。
//
// 由 Group 取消引起的 context.Canceled 被过滤；Cancel(cause) 或信号设置的
// 原因即使所有服务都返回 nil 也会被返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	close(g.done)
	<-g.sigDone

	cause := context.Cause(g.causeCtx)
	if g.causeCtx.Err() == nil || errors.Is(cause, context.Canceled) {
		cause = nil
	}
	switch {
	case errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil:
		return cause
	case err == nil:
		return cause
	}
	return err
}

// Cancel 以 cause 取消全部服务。cause 不应包装 context.Canceled。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Ticker 返回每隔 interval 执行一次 fn 的服务函数，fn 出错时服务退出。
func Ticker(interval time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// HTTPServer 在已监听的 ln 上运行 srv，ctx 结束后在 shutdownTimeout 内优雅关闭。
// ln 由调用方创建，Serve 返回后已关闭。
func HTTPServer(srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil || ln == nil {
			return ErrNilServer
		}
		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(ln) }()

		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			err = errors.Join(err, serr)
		}
		return err
	}
}
