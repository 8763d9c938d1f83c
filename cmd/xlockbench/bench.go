//go:build !windows

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xlock/pkg/config/xconf"
	"github.com/omeyang/xlock/pkg/debug/xdbg"
	"github.com/omeyang/xlock/pkg/debug/xlockadmin"
	"github.com/omeyang/xlock/pkg/lifecycle/xrun"
	"github.com/omeyang/xlock/pkg/observability/xlog"
	"github.com/omeyang/xlock/pkg/observability/xmetrics"
	"github.com/omeyang/xlock/pkg/util/xkeylock"
)

const (
	idleTimeout       = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// benchConfig 压测参数
type benchConfig struct {
	Workers  int
	Keys     int
	Hold     time.Duration
	Duration time.Duration
	// Nested 每次操作内重入同一 key 并嵌套锁子 key 的概率
	Nested float64

	ConfigPath  string
	Socket      string
	MetricsAddr string
	Trace       bool
	Progress    time.Duration
	Report      string
	StaleAfter  time.Duration
	LogLevel    string
	LogFormat   string
}

func (c benchConfig) validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.Keys <= 0:
		return fmt.Errorf("keys must be positive, got %d", c.Keys)
	case c.Hold < 0:
		return fmt.Errorf("hold must not be negative, got %s", c.Hold)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	case c.Nested < 0 || c.Nested > 1:
		return fmt.Errorf("nested must be within [0, 1], got %g", c.Nested)
	}
	return nil
}

// benchResult 压测结果
type benchResult struct {
	Ops     int64            `json:"ops"`
	Nested  int64            `json:"nested"`
	Elapsed time.Duration    `json:"-"`
	OpsPerS float64          `json:"ops_per_second"`
	Stats   xlockadmin.Stats `json:"stats"`
	// Instruments OTel 采集到的指标名
	Instruments []string `json:"instruments"`
}

// runBench 组装锁管理器与全部旁路组件，执行 Duration 时长的压测。
// 日志写入 logOut，trace 开启时 span 以 JSON 写入 traceOut。
func runBench(ctx context.Context, bc benchConfig, logOut, traceOut io.Writer) (res *benchResult, err error) {
	if err := bc.validate(); err != nil {
		return nil, &usageError{msg: err.Error()}
	}

	base, closeLog, err := xlog.New().
		SetOutput(logOut).
		SetLevelString(bc.LogLevel).
		SetFormat(bc.LogFormat).
		Build()
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	defer func() { err = errors.Join(err, closeLog()) }()
	logger := base.With(xlog.Component("xlockbench"))

	locker, err := xkeylock.New(xkeylock.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if bc.ConfigPath != "" {
		stop, err := watchConfig(bc.ConfigPath, locker, logger)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	admin, err := xlockadmin.New(locker, xlockadmin.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer admin.Close()
	if bc.Report != "" {
		if err := admin.StartReport(bc.Report, bc.StaleAfter); err != nil {
			return nil, &usageError{msg: err.Error()}
		}
		defer admin.StopReport()
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { err = errors.Join(err, mp.Shutdown(context.WithoutCancel(ctx))) }()
	tp, err := newTracerProvider(bc.Trace, traceOut)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, tp.Shutdown(context.WithoutCancel(ctx))) }()

	otelListener, err := xmetrics.NewOTelListener(
		xmetrics.WithMeterProvider(mp), xmetrics.WithLockCount(locker))
	if err != nil {
		return nil, err
	}
	defer otelListener.Close() //nolint:errcheck // 仅注销 gauge 回调
	defer locker.Listen(otelListener)()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	promListener, err := xmetrics.NewPromListener(reg, xmetrics.WithLockCount(locker))
	if err != nil {
		return nil, err
	}
	defer promListener.Close()
	defer locker.Listen(promListener)()

	if bc.Socket != "" {
		srv, err := xdbg.New(
			xdbg.WithSocketPath(bc.Socket),
			xdbg.WithLogger(logger),
			xdbg.WithLeveler(base),
			xdbg.WithConfig(admin.ConfigMap),
		)
		if err != nil {
			return nil, err
		}
		srv.RegisterCommand(admin.Commands()...)
		if err := srv.Start(ctx); err != nil {
			return nil, err
		}
		defer func() { err = errors.Join(err, srv.Stop()) }()
	}

	var (
		metricsSrv *http.Server
		metricsLn  net.Listener
	)
	if bc.MetricsAddr != "" {
		metricsSrv, metricsLn, err = newMetricsServer(bc.MetricsAddr, reg)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "metrics listening", slog.String("addr", metricsLn.Addr().String()))
	}

	runCtx, cancel := context.WithTimeout(ctx, bc.Duration)
	defer cancel()
	g, _ := xrun.NewGroup(runCtx,
		xrun.WithName("xlockbench"),
		xrun.WithLogger(logger),
		xrun.WithSignals(syscall.SIGINT, syscall.SIGTERM),
	)
	if metricsSrv != nil {
		g.Go("metrics", xrun.HTTPServer(metricsSrv, metricsLn, idleTimeout))
	}

	var ops, nested atomic.Int64
	if bc.Progress > 0 {
		g.Go("progress", xrun.Ticker(bc.Progress, func(ctx context.Context) error {
			logger.Info(ctx, "bench progress", xlog.Count(ops.Load()), slog.Int("locks", locker.Len()))
			return nil
		}))
	}

	tracer := tp.Tracer("xlockbench")
	start := time.Now()
	for i := range bc.Workers {
		g.Go(fmt.Sprintf("worker-%d", i), func(ctx context.Context) error {
			w := &worker{
				locker: locker,
				tracer: tracer,
				rng:    rand.New(rand.NewPCG(uint64(i), uint64(start.UnixNano()))),
				cfg:    bc,
				ops:    &ops,
				nested: &nested,
			}
			return w.loop(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, xrun.ErrSignal) && !isContextErr(err) {
		return nil, err
	}
	elapsed := time.Since(start)

	idleCtx, idleCancel := context.WithTimeout(context.WithoutCancel(ctx), idleTimeout)
	defer idleCancel()
	if err := locker.WaitIdle(idleCtx); err != nil {
		logger.Warn(ctx, "locks still held after run", slog.Int("locks", locker.Len()))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.WithoutCancel(ctx), &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	res = &benchResult{
		Ops:         ops.Load(),
		Nested:      nested.Load(),
		Elapsed:     elapsed,
		OpsPerS:     float64(ops.Load()) / elapsed.Seconds(),
		Stats:       admin.Stats(),
		Instruments: instrumentNames(rm),
	}
	return res, nil
}

func watchConfig(path string, locker *xkeylock.Locker, logger xlog.Logger) (stop func(), err error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, err
	}
	if err := xconf.BindLocker(cfg, xconf.DefaultLockerPath, locker); err != nil {
		return nil, err
	}
	w, err := xconf.WatchLocker(cfg, xconf.DefaultLockerPath, locker, logger)
	if err != nil {
		return nil, err
	}
	w.StartAsync()
	return func() { _ = w.Stop() }, nil
}

func newTracerProvider(enable bool, out io.Writer) (*sdktrace.TracerProvider, error) {
	if !enable {
		// 无导出器时 span 仍会采样记录，监听器照常附加 span 事件
		return sdktrace.NewTracerProvider(), nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

// newMetricsServer 先同步监听，地址错误在压测开始前返回
func newMetricsServer(addr string, reg *prometheus.Registry) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}, ln, nil
}

// childKey 与父 key 类型不同，嵌套加锁不触发同类 key 告警
type childKey struct{ parent string }

func (childKey) KeyType() string { return "child" }

type worker struct {
	locker *xkeylock.Locker
	tracer trace.Tracer
	rng    *rand.Rand
	cfg    benchConfig
	ops    *atomic.Int64
	nested *atomic.Int64
}

func (w *worker) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		key := fmt.Sprintf("key-%d", w.rng.IntN(w.cfg.Keys))
		if err := w.once(ctx, key); err != nil {
			if isContextErr(err) {
				return nil
			}
			return err
		}
		w.ops.Add(1)
	}
	return nil
}

func (w *worker) once(ctx context.Context, key string) error {
	ctx, span := w.tracer.Start(ctx, "bench.op")
	defer span.End()

	reenter := w.rng.Float64() < w.cfg.Nested
	return w.locker.Do(ctx, key, "bench", func(ctx context.Context) error {
		if reenter {
			w.nested.Add(1)
			// 同 key 重入后再锁其专属子 key，子 key 不与其他父 key 交叉，不会死锁
			return w.locker.Do(ctx, key, "bench.reenter", func(ctx context.Context) error {
				return w.locker.Do(ctx, childKey{parent: key}, "bench.child", func(ctx context.Context) error {
					return hold(ctx, w.cfg.Hold)
				})
			})
		}
		return hold(ctx, w.cfg.Hold)
	})
}

func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func instrumentNames(rm metricdata.ResourceMetrics) []string {
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

// printResult 输出人类可读摘要，asJSON 时输出完整 JSON
func printResult(w io.Writer, res *benchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprintf(w,
		"ops: %d (nested %d) in %s, %.1f ops/s\n"+
			"max concurrency: %d, max depth: %d\n"+
			"avg acquire: %s, avg hold: %s\n"+
			"instruments: %v\n",
		res.Ops, res.Nested, res.Elapsed.Round(time.Millisecond), res.OpsPerS,
		res.Stats.MaxConcurrency, res.Stats.MaxDepth,
		res.Stats.AverageAcquireTime, res.Stats.AverageHoldTime,
		res.Instruments)
	return err
}
