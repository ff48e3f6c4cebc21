package vm

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAssetProbesSubdirThenDirect(t *testing.T) {
	dir := t.TempDir()

	_, ok := findAsset(dir, assetKernel)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, assetKernel), []byte("k"), 0o644))
	got, ok := findAsset(dir, assetKernel)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, assetKernel), got)
}

func TestFindAssetMatchesLiteralPath(t *testing.T) {
	dir := t.TempDir()
	kernelPath := filepath.Join(dir, assetKernel)
	require.NoError(t, os.WriteFile(kernelPath, []byte("k"), 0o644))

	got, ok := findAsset(kernelPath, assetKernel)
	require.True(t, ok)
	assert.Equal(t, kernelPath, got)
}

func TestResolveAssetsRequiresBothFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, assetKernel), []byte("k"), 0o644))

	cfg := config.Default()
	cfg.VMAssetPaths = []string{dir}
	_, _, ok := resolveAssets(cfg)
	assert.False(t, ok, "missing initramfs should fail resolution")

	require.NoError(t, os.WriteFile(filepath.Join(dir, assetInitramfs), []byte("i"), 0o644))
	kernel, initramfs, ok := resolveAssets(cfg)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, assetKernel), kernel)
	assert.Equal(t, filepath.Join(dir, assetInitramfs), initramfs)
}

func TestLifecycleFallbackWhenAssetsMissing(t *testing.T) {
	cfg := config.Default()
	cfg.VMAssetPaths = []string{t.TempDir()} // empty, no assets
	cfg.ConnectionTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := Start(ctx, cfg)
	assert.Equal(t, PhaseFallback, l.Phase())
	assert.Nil(t, l.Dialer())
}

func TestLifecycleConnectSucceedsOverUnixSocketInFallback(t *testing.T) {
	cfg := config.Default()
	cfg.VMAssetPaths = []string{t.TempDir()}
	cfg.SocketPath = filepath.Join(t.TempDir(), "shim.sock")
	cfg.ConnectionTimeout = time.Second

	l := Start(context.Background(), cfg)
	require.Equal(t, PhaseFallback, l.Phase())

	ln, err := net.Listen("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer ln.Close()
	go ln.Accept()

	stream, err := l.Connect(context.Background())
	require.NoError(t, err)
	stream.Close()
}

func TestLifecycleShutdownIsSafeInFallback(t *testing.T) {
	cfg := config.Default()
	cfg.VMAssetPaths = []string{t.TempDir()}

	l := Start(context.Background(), cfg)
	l.Shutdown(context.Background())
	assert.Equal(t, PhaseDestroyed, l.Phase())
}
