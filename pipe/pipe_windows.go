// File: pipe/pipe_windows.go
//go:build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named pipes: a fixed pool of pending instances replaces the listener.

package pipe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/handle"
	"golang.org/x/sys/windows"
)

const pipeBufferSize = 64 * 1024

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeConn presents a connected pipe handle as a net.Conn.
type pipeConn struct {
	*os.File
	addr pipeAddr
}

func (c *pipeConn) LocalAddr() net.Addr  { return c.addr }
func (c *pipeConn) RemoteAddr() net.Addr { return c.addr }

type winFactory struct {
	name string
}

func (f *winFactory) Create(first bool) (instance, error) {
	name, err := windows.UTF16PtrFromString(f.name)
	if err != nil {
		return nil, err
	}
	mode := uint32(windows.PIPE_ACCESS_DUPLEX)
	if first {
		mode |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	h, err := windows.CreateNamedPipe(name, mode,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES, pipeBufferSize, pipeBufferSize, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("create named pipe: %w", err)
	}
	return &winInstance{h: h, name: f.name}, nil
}

func (f *winFactory) Wake() error {
	h, err := openPipe(f.name)
	if err != nil {
		return err
	}
	return windows.CloseHandle(h)
}

func (f *winFactory) Addr() net.Addr { return pipeAddr(f.name) }

type winInstance struct {
	h    windows.Handle
	name string
}

func (i *winInstance) Wait() (net.Conn, error) {
	if err := windows.ConnectNamedPipe(i.h, nil); err != nil && err != windows.ERROR_PIPE_CONNECTED {
		return nil, fmt.Errorf("connect named pipe: %w", err)
	}
	return &pipeConn{File: os.NewFile(uintptr(i.h), i.name), addr: pipeAddr(i.name)}, nil
}

func (i *winInstance) Close() error {
	return windows.CloseHandle(i.h)
}

func listenPipe(path string, pending int) (listener, error) {
	return newInstancePool(&winFactory{name: path}, pending)
}

func openPipe(name string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	return windows.CreateFile(p, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.OPEN_EXISTING, 0, 0)
}

// dialPipe retries while every instance is busy.
func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	for {
		h, err := openPipe(path)
		if err == nil {
			return &pipeConn{File: os.NewFile(uintptr(h), path), addr: pipeAddr(path)}, nil
		}
		if err != windows.ERROR_PIPE_BUSY {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(handle.FileRetryDelay):
		}
	}
}

func openFD(fd uintptr, o handle.Options) (api.Conn, net.Conn, error) {
	fc, err := handle.NewFileConn(fd, o.Loop, o.Clock)
	return fc, nil, err
}

func chmodPipe(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

// TempName returns an unused pipe name.
func TempName() string {
	return `\\.\pipe\hioload-` + uuid.NewString()
}
