//go:build !windows && !linux && !darwin && !freebsd

package xdbg

import (
	"net"
	"os"
)

// peerIdentity 平台不支持对端凭证，退化为本进程身份。
func peerIdentity(_ *net.UnixConn) (*PeerIdentity, error) {
	return &PeerIdentity{
		UID: uint32(os.Getuid()), //nolint:gosec // uid 非负
		GID: uint32(os.Getgid()), //nolint:gosec // gid 非负
		PID: int32(os.Getpid()),  //nolint:gosec // pid 在 int32 范围内
	}, nil
}
