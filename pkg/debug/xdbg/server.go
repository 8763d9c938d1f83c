//go:build !windows

package xdbg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

// Server 调试服务器。
type Server struct {
	opts   *options
	reg    *registry
	logger xlog.Logger
	slots  chan struct{}
	// admits 会话槽，容量为 maxSessions
	admits chan struct{}

	mu      sync.Mutex
	ln      *net.UnixListener
	conns   map[net.Conn]struct{}
	started bool
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sessions atomic.Int32
}

// New 创建服务器并注册内置命令（help、setlog、stack、config、memstats）。
func New(opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		opts:   o,
		reg:    newRegistry(o.whitelist),
		logger: o.logger.With(xlog.Component("xdbg")),
		slots:  make(chan struct{}, o.maxCommands),
		admits: make(chan struct{}, o.maxSessions),
		conns:  make(map[net.Conn]struct{}),
	}
	s.registerBuiltins()
	return s, nil
}

// RegisterCommand 注册命令，同名覆盖。
func (s *Server) RegisterCommand(cmds ...Command) {
	for _, c := range cmds {
		if c != nil {
			s.reg.register(c)
		}
	}
}

func (s *Server) UnregisterCommand(name string) { s.reg.unregister(name) }

// Addr Socket 路径。
func (s *Server) Addr() string { return s.opts.socketPath }

// Start 开始监听。Stop 之后不能再次 Start。
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return ErrAlreadyRunning
	}
	ln, err := listenUnix(s.opts.socketPath, s.opts.socketPerm)
	if err != nil {
		return err
	}
	s.ln = ln
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.logger.Info(ctx, "debug server listening", slog.String("socket", s.opts.socketPath))

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop 关闭监听与全部会话，等待至多 ShutdownTimeout。可重复调用。
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	err := s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.shutdownTimeout):
		s.logger.Warn(context.Background(), "debug server shutdown timed out, commands still running",
			xlog.Duration(s.opts.shutdownTimeout))
	}
	if rmErr := os.Remove(s.opts.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	s.logger.Info(context.Background(), "debug server stopped")
	return err
}

func (s *Server) acceptLoop(ln *net.UnixListener) {
	defer s.wg.Done()
	backoff := 5 * time.Millisecond
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn(s.ctx, "debug server accept failed", xlog.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, time.Second)
			continue
		}
		backoff = 5 * time.Millisecond
		s.serve(conn)
	}
}

func (s *Server) serve(conn *net.UnixConn) {
	peer, err := peerIdentity(conn)
	if err != nil {
		s.logger.Warn(s.ctx, "debug peer identity unavailable", xlog.Err(err))
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(conn)
		if !s.admit() {
			s.reject(conn, peer)
			return
		}
		defer func() { <-s.admits }()
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		newSession(s, conn, peer).run()
	}()
}

// admit 占用会话槽。槽满时至多等待 SessionWaitTimeout，
// 客户端逐条命令新建连接时，上一会话要读到 EOF 才释放槽。
func (s *Server) admit() bool {
	select {
	case s.admits <- struct{}{}:
		return true
	default:
	}
	if s.opts.sessionWait <= 0 {
		return false
	}
	t := time.NewTimer(s.opts.sessionWait)
	defer t.Stop()
	select {
	case s.admits <- struct{}{}:
		return true
	case <-t.C:
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) reject(conn net.Conn, peer *PeerIdentity) {
	s.logger.Warn(s.ctx, "debug session rejected", slog.String("peer", peer.String()),
		xlog.Err(ErrTooManySessions))
	if s.opts.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	}
	_ = WriteMessage(conn, MessageTypeResponse, errorResponse(ErrTooManySessions))
	_ = conn.Close()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Execute 在进程内执行命令，与 Socket 请求经过相同的白名单、并发槽、超时与 panic 隔离。
func (s *Server) Execute(ctx context.Context, name string, args []string) *Response {
	cmd := s.reg.get(name)
	if cmd == nil {
		return errorResponse(fmt.Errorf("%w: %s", ErrCommandNotFound, name))
	}
	if !s.reg.allowed(name) {
		return errorResponse(fmt.Errorf("%w: %s", ErrCommandForbidden, name))
	}
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	default:
		return errorResponse(ErrTooManyCommands)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.commandTimeout)
	defer cancel()
	out, err := runCommand(ctx, cmd, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return errorResponse(err)
	}
	return outputResponse(out, s.opts.maxOutput)
}

// runCommand 命令 panic 转为错误，不影响宿主进程。
func runCommand(ctx context.Context, cmd Command, args []string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xdbg: command %s panicked: %v", cmd.Name(), r)
		}
	}()
	return cmd.Execute(ctx, args)
}
