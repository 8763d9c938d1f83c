//go:build darwin || freebsd

package xdbg

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerIdentity 通过 LOCAL_PEERCRED 读取对端身份，不含 PID。
func peerIdentity(conn *net.UnixConn) (*PeerIdentity, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("xdbg: syscall conn: %w", err)
	}
	var (
		cred    *unix.Xucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	}); err != nil {
		return nil, fmt.Errorf("xdbg: control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("xdbg: LOCAL_PEERCRED: %w", credErr)
	}
	var gid uint32
	if len(cred.Groups) > 0 {
		gid = cred.Groups[0]
	}
	return &PeerIdentity{UID: cred.Uid, GID: gid}, nil
}
