// Package transport establishes the byte-stream connection to the in-guest
// agent: native vsock through the VM bridge when available, Unix-domain
// socket otherwise. Callers see a single Stream type regardless of which
// path was used.
package transport

import (
	"context"
	"net"
	"os"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// VsockDialer is satisfied by a VM bridge handle that can hand back a
// connected vsock file descriptor. Kept narrow so this package never
// depends on pkg/vmbridge directly — it only needs this one capability.
type VsockDialer interface {
	VsockConnect(ctx context.Context, port uint32) (fd int, err error)
}

// Stream is a blocking bidirectional byte channel to the agent, backed by
// either a Unix socket connection or a raw vsock file descriptor.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Dial connects to the agent, preferring native vsock through dialer when
// non-nil, falling back to the Unix-domain socket at cfg.SocketPath on
// timeout, failure, or when dialer is nil.
func Dial(ctx context.Context, cfg config.RuntimeConfig, dialer VsockDialer) (Stream, error) {
	if dialer != nil {
		if s, err := dialVsock(ctx, cfg, dialer); err == nil {
			return s, nil
		}
	}
	return dialUnix(cfg)
}

func dialVsock(ctx context.Context, cfg config.RuntimeConfig, dialer VsockDialer) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	fd, err := dialer.VsockConnect(ctx, cfg.VsockPort)
	if err != nil {
		return nil, shimerr.Io(err, "vsock connect")
	}
	return &vsockStream{f: os.NewFile(uintptr(fd), "vsock")}, nil
}

func dialUnix(cfg config.RuntimeConfig) (Stream, error) {
	conn, err := net.DialTimeout("unix", cfg.SocketPath, cfg.ConnectionTimeout)
	if err != nil {
		return nil, shimerr.Io(err, "unix socket connect: "+cfg.SocketPath)
	}
	return &unixStream{conn: conn}, nil
}

// unixStream is the Unix-domain-socket variant.
type unixStream struct {
	conn net.Conn
}

func (u *unixStream) Read(p []byte) (int, error)  { return u.conn.Read(p) }
func (u *unixStream) Write(p []byte) (int, error) { return u.conn.Write(p) }
func (u *unixStream) Close() error                { return u.conn.Close() }

// vsockStream is the native-vsock variant, backed by a raw fd wrapped in
// an *os.File so Read/Write/Close reuse the standard library's syscall
// handling instead of calling into libc directly.
type vsockStream struct {
	f *os.File
}

func (v *vsockStream) Read(p []byte) (int, error)  { return v.f.Read(p) }
func (v *vsockStream) Write(p []byte) (int, error) { return v.f.Write(p) }
func (v *vsockStream) Close() error                { return v.f.Close() }
