package runtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/rpcclient"
	"github.com/cuemby/libcrun-shim/pkg/wire"
	"github.com/stretchr/testify/require"
)

// serveOneCall accepts a single connection on ln, decodes one request frame,
// and replies with whatever respond returns for it.
func serveOneCall(t *testing.T, ln net.Listener, respond func(wire.Request) wire.Response) {
	t.Helper()
	go func() {
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

func newTestBackend(t *testing.T) (*VMBackend, net.Listener) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SocketPath = dir + "/shim.sock"
	cfg.ConnectionTimeout = 2 * time.Second

	ln, err := net.Listen("unix", cfg.SocketPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	client := rpcclient.New(cfg, nil)
	return NewVMBackend(client), ln
}

func TestVMBackendCreateReturnsID(t *testing.T) {
	backend, ln := newTestBackend(t)
	serveOneCall(t, ln, func(req wire.Request) wire.Response {
		create := req.(wire.CreateRequest)
		return wire.CreatedResponse{ID: create.Config.ID}
	})

	id, err := backend.Create(context.Background(), model.ContainerConfig{
		ID: "c1", Rootfs: "/rootfs", Argv: []string{"/bin/sh"},
	})
	require.NoError(t, err)
	require.Equal(t, "c1", id)
}

func TestVMBackendCreateRejectsInvalidConfigWithoutCallingRPC(t *testing.T) {
	backend, _ := newTestBackend(t)
	_, err := backend.Create(context.Background(), model.ContainerConfig{})
	require.Error(t, err)
}

func TestVMBackendListReturnsRecords(t *testing.T) {
	backend, ln := newTestBackend(t)
	serveOneCall(t, ln, func(req wire.Request) wire.Response {
		return wire.ListResponse{Containers: []model.ContainerRecord{
			{ID: "c1", Status: model.StatusRunning},
		}}
	})

	records, err := backend.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "c1", records[0].ID)
}

func TestVMBackendPropagatesUnexpectedResponse(t *testing.T) {
	backend, ln := newTestBackend(t)
	serveOneCall(t, ln, func(req wire.Request) wire.Response {
		return wire.StoppedResponse{} // wrong variant for a Start request
	})

	err := backend.Start(context.Background(), "c1")
	require.Error(t, err)
}
