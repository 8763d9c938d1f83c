//go:build !windows

package xdbg

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

// Client 调试服务客户端，每次 Execute 使用一个新连接。
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient timeout 在 ctx 无截止时间时生效。
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Execute 发送一条命令并等待响应。
func (c *Client) Execute(ctx context.Context, command string, args []string) (*Response, error) {
	info, err := os.Lstat(c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("xdbg: socket %s: %w", c.socketPath, err)
	}
	if info.Mode().Type()&os.ModeSocket == 0 {
		return nil, fmt.Errorf("xdbg: %s is not a unix socket", c.socketPath)
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("xdbg: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline, ok = time.Now().Add(c.timeout), true
	}
	if ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("xdbg: set deadline: %w", err)
		}
	}

	if err := WriteMessage(conn, MessageTypeRequest, &Request{Command: command, Args: args}); err != nil {
		return nil, fmt.Errorf("xdbg: send request: %w", err)
	}
	var resp Response
	if err := ReadMessage(conn, MessageTypeResponse, &resp); err != nil {
		return nil, fmt.Errorf("xdbg: read response: %w", err)
	}
	return &resp, nil
}

// Ping 执行 help 检查服务是否在线。
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Execute(ctx, "help", nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("xdbg: ping: %s", resp.Error)
	}
	return nil
}
