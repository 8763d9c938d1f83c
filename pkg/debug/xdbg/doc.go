// Package xdbg 进程内调试服务：通过 Unix Socket 接收命令并返回文本输出。
//
// 协议为 8 字节头 + JSON 负载：
//
//	Magic(2, 0xDB09) | Version(1) | Type(1) | Length(4, 大端)
//
// 安全边界：Socket 文件权限默认 0600，每个连接通过 SO_PEERCRED
// （macOS/FreeBSD 为 LOCAL_PEERCRED）取得对端身份并写入审计日志，
// 可用 WithCommandWhitelist 收敛命令集。命令 panic 被恢复为错误响应。
//
//	srv, _ := xdbg.New(xdbg.WithSocketPath("/tmp/app.sock"), xdbg.WithLeveler(logger))
//	srv.RegisterCommand(myCmd)
//	_ = srv.Start(ctx)
//	defer srv.Stop()
package xdbg
