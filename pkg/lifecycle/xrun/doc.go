// Package xrun 管理一组协同运行的服务：任一服务出错、收到终止信号
// 或父 context 结束时，其余服务都会收到取消。
//
// 基本用法：
//
//	g, ctx := xrun.NewGroup(ctx,
//	    xrun.WithName("xlockbench"),
//	    xrun.WithLogger(logger),
//	    xrun.WithSignals(syscall.SIGINT, syscall.SIGTERM),
//	)
//	g.Go("metrics", xrun.HTTPServer(srv, ln, 5*time.Second))
//	g.Go("progress", xrun.Ticker(time.Second, report))
//	err := g.Wait()
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 信号触发的正常退出
//	}
//
// Wait 过滤由取消引起的 context.Canceled，但保留 Cancel(cause) 或信号
// 设置的退出原因。
package xrun
