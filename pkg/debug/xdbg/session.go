//go:build !windows

package xdbg

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/omeyang/xlock/pkg/observability/xlog"
)

type session struct {
	srv  *Server
	conn net.Conn
	peer *PeerIdentity
}

func newSession(srv *Server, conn net.Conn, peer *PeerIdentity) *session {
	return &session{srv: srv, conn: conn, peer: peer}
}

func (ss *session) run() {
	ctx := ss.srv.ctx
	log := ss.srv.logger.With(slog.String("peer", ss.peer.String()))
	log.Info(ctx, "debug session started")
	defer log.Info(ctx, "debug session ended")

	for ctx.Err() == nil {
		if t := ss.srv.opts.readTimeout; t > 0 {
			if err := ss.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
				return
			}
		}
		var req Request
		if err := ReadMessage(ss.conn, MessageTypeRequest, &req); err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, ErrConnectionClosed), errors.Is(err, net.ErrClosed):
			case errors.As(err, &ne) && ne.Timeout():
				ss.write(errorResponse(ErrTimeout))
			default:
				ss.write(errorResponse(err))
			}
			return
		}
		_ = ss.conn.SetReadDeadline(time.Time{})

		start := time.Now()
		resp := ss.srv.Execute(ctx, req.Command, req.Args)
		attrs := []slog.Attr{
			slog.String("command", req.Command),
			slog.Any("args", req.Args),
			xlog.Duration(time.Since(start)),
		}
		if resp.Success {
			log.Info(ctx, "debug command executed", attrs...)
		} else {
			log.Warn(ctx, "debug command failed", append(attrs, slog.String("error", resp.Error))...)
		}
		if !ss.write(resp) {
			return
		}
	}
}

func (ss *session) write(resp *Response) bool {
	if t := ss.srv.opts.writeTimeout; t > 0 {
		if err := ss.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return false
		}
	}
	err := WriteMessage(ss.conn, MessageTypeResponse, resp)
	if errors.Is(err, ErrMessageTooLarge) {
		err = WriteMessage(ss.conn, MessageTypeResponse, errorResponse(ErrMessageTooLarge))
	}
	if err != nil {
		ss.srv.logger.Warn(ss.srv.ctx, "debug response write failed", xlog.Err(err))
		return false
	}
	return true
}
