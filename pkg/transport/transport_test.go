package transport

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	fd  int
	err error
}

func (f fakeDialer) VsockConnect(ctx context.Context, port uint32) (int, error) {
	return f.fd, f.err
}

func TestDialFallsBackToUnixWhenDialerFails(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "shim.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			close(accepted)
			conn.Close()
		}
	}()

	cfg := config.Default()
	cfg.SocketPath = sockPath
	cfg.ConnectionTimeout = 2 * time.Second

	stream, err := Dial(context.Background(), cfg, fakeDialer{err: errors.New("no bridge")})
	require.NoError(t, err)
	defer stream.Close()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("unix listener never accepted a connection")
	}
}

func TestDialWithNoDialerGoesStraightToUnix(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "shim.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()
	go ln.Accept()

	cfg := config.Default()
	cfg.SocketPath = sockPath
	cfg.ConnectionTimeout = time.Second

	stream, err := Dial(context.Background(), cfg, nil)
	require.NoError(t, err)
	stream.Close()
}
