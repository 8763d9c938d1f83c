//go:build !windows

package xdbg

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
)

// PeerIdentity 对端进程身份。
type PeerIdentity struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
	// PID 在 macOS/FreeBSD 上为 0
	PID int32 `json:"pid"`
}

// String 形如 "alice(uid=1000) pid=42"，用户名无法解析时省略。
func (p *PeerIdentity) String() string {
	if p == nil {
		return "unknown"
	}
	uid := strconv.FormatUint(uint64(p.UID), 10)
	name := "uid=" + uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username + "(" + name + ")"
	}
	return fmt.Sprintf("%s gid=%d pid=%d", name, p.GID, p.PID)
}

// listenUnix 创建 Unix Socket 并设置权限。路径上已存在的 socket 文件被替换，
// 其他类型的文件返回错误。
func listenUnix(path string, perm os.FileMode) (*net.UnixListener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("xdbg: %s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("xdbg: remove stale socket: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("xdbg: stat socket: %w", err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("xdbg: listen: %w", err)
	}
	// Close 时由 Server 删除文件
	ln.SetUnlinkOnClose(false)
	if err := os.Chmod(path, perm); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("xdbg: chmod socket: %w", err)
	}
	return ln, nil
}
