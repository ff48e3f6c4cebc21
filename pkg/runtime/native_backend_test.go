//go:build linux

package runtime

import (
	"context"
	"testing"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T, id string) model.ContainerConfig {
	t.Helper()
	return model.ContainerConfig{
		ID:     id,
		Rootfs: t.TempDir(),
		Argv:   []string{"/bin/sh"},
	}
}

func TestNativeBackendCreateRejectsDuplicateID(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	_, err := b.Create(ctx, validConfig(t, "dup"))
	require.NoError(t, err)

	_, err = b.Create(ctx, validConfig(t, "dup"))
	require.Error(t, err)
}

func TestNativeBackendCreateRejectsMissingRootfs(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	cfg := model.ContainerConfig{
		ID:     "missing-rootfs",
		Rootfs: "/no/such/rootfs",
		Argv:   []string{"/bin/sh"},
	}

	_, err := b.Create(ctx, cfg)
	require.Error(t, err)
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindRuntime, kind)
}

func TestNativeBackendStartRequiresCreated(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	err := b.Start(ctx, "missing")
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindNotFound, kind)
}

func TestNativeBackendStoppedCannotRestart(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	_, err := b.Create(ctx, validConfig(t, "c1"))
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx, "c1"))
	require.NoError(t, b.Stop(ctx, "c1"))

	err = b.Start(ctx, "c1")
	assert.Error(t, err)
}

func TestNativeBackendDeleteForbidsRunning(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	_, err := b.Create(ctx, validConfig(t, "c1"))
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx, "c1"))

	err = b.Delete(ctx, "c1")
	assert.Error(t, err)

	require.NoError(t, b.Stop(ctx, "c1"))
	assert.NoError(t, b.Delete(ctx, "c1"))
}

func TestNativeBackendListReflectsState(t *testing.T) {
	b := NewNativeBackend("/nonexistent/containerd.sock")
	ctx := context.Background()

	_, err := b.Create(ctx, validConfig(t, "c1"))
	require.NoError(t, err)
	_, err = b.Create(ctx, validConfig(t, "c2"))
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx, "c1"))

	records, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
