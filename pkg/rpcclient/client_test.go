package rpcclient

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/wire"
	"github.com/stretchr/testify/require"
)

// serveOnce accepts a single connection, decodes one request frame, and
// writes back the response produced by respond.
func serveOnce(t *testing.T, sockPath string, respond func(wire.Request) wire.Response) {
	t.Helper()
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(frame)
		if err != nil {
			return
		}
		resp := respond(req)
		encoded, err := wire.EncodeResponse(resp)
		if err != nil {
			return
		}
		_ = wire.WriteFrame(conn, encoded)
	}()
}

func testConfig(t *testing.T) config.RuntimeConfig {
	cfg := config.Default()
	cfg.SocketPath = filepath.Join(t.TempDir(), "shim.sock")
	cfg.ConnectionTimeout = 2 * time.Second
	return cfg
}

func TestCallReturnsExpectedVariant(t *testing.T) {
	cfg := testConfig(t)
	serveOnce(t, cfg.SocketPath, func(req wire.Request) wire.Response {
		return wire.StartedResponse{}
	})

	client := New(cfg, nil)
	resp, err := client.Call(context.Background(), wire.StartRequest{ID: "c1"})
	require.NoError(t, err)
	require.Equal(t, wire.StartedResponse{}, resp)
}

func TestCallLiftsErrorResponse(t *testing.T) {
	cfg := testConfig(t)
	serveOnce(t, cfg.SocketPath, func(req wire.Request) wire.Response {
		return wire.ErrorResponse{Message: "container not found"}
	})

	client := New(cfg, nil)
	_, err := client.Call(context.Background(), wire.StopRequest{ID: "missing"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "container not found")
}

func TestCallRejectsMismatchedVariant(t *testing.T) {
	cfg := testConfig(t)
	serveOnce(t, cfg.SocketPath, func(req wire.Request) wire.Response {
		return wire.StoppedResponse{}
	})

	client := New(cfg, nil)
	_, err := client.Call(context.Background(), wire.StartRequest{ID: "c1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected response")
}
