// File: pipe/pipe_unix.go
//go:build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unix-domain sockets: a host listener bound to a filesystem path feeds
// the shared accept loop.

package pipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
	"golang.org/x/sys/unix"
)

// listenPipe ignores pending; each accept produces a fresh socket.
func listenPipe(path string, _ int) (listener, error) {
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	ln.SetUnlinkOnClose(true)
	return ln, nil
}

func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// openFD probes fd for a socket and falls back to a file stream when it
// is not one.
func openFD(fd uintptr, o handle.Options) (api.Conn, net.Conn, error) {
	if _, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_TYPE); err != nil {
		if !errors.Is(err, unix.ENOTSOCK) {
			return nil, nil, fmt.Errorf("probe fd %d: %w", fd, err)
		}
		fc, err := handle.NewFileConn(fd, o.Loop, o.Clock)
		if err != nil {
			return nil, nil, err
		}
		return fc, nil, nil
	}
	f := os.NewFile(fd, "pipe")
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, nil, err
	}
	return handle.WrapNetConn(c, o.Loop), c, nil
}

func chmodPipe(path string, mode os.FileMode) error {
	return unix.Chmod(path, uint32(mode))
}

// TempName returns an unused socket path under the temp directory.
func TempName() string {
	return filepath.Join(os.TempDir(), "hioload-"+uuid.NewString()+".sock")
}
