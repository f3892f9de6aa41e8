// File: handle/file_windows.go
//go:build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handle

import (
	"os"
	"time"

	"github.com/momentics/hioload-wrap/api"
	"github.com/momentics/hioload-wrap/internal/clock"
	"github.com/momentics/hioload-wrap/loop"
)

// FileConn is the capability for handles that are not sockets, such as
// named-pipe instances and anonymous pipes.
type FileConn struct {
	f  *os.File
	ka *KeepAlive
}

var _ api.Conn = (*FileConn)(nil)

// NewFileConn takes ownership of the handle fd.
func NewFileConn(fd uintptr, l *loop.Loop, _ clock.Clock) (*FileConn, error) {
	return &FileConn{f: os.NewFile(fd, "pipe"), ka: NewKeepAlive(l)}, nil
}

func (f *FileConn) Read(p []byte) (int, error)  { return f.f.Read(p) }
func (f *FileConn) Write(p []byte) (int, error) { return f.f.Write(p) }

func (f *FileConn) Close() error {
	f.ka.Unref()
	return f.f.Close()
}

func (f *FileConn) Ref()   { f.ka.Ref() }
func (f *FileConn) Unref() { f.ka.Unref() }

// FileRetryDelay is the pause between attempts on a busy resource.
const FileRetryDelay = 10 * time.Millisecond
