package config

import (
	"testing"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, defaultSocketPath, cfg.SocketPath)
	assert.Equal(t, defaultVsockPort, cfg.VsockPort)
	assert.Equal(t, defaultVMMemory, cfg.VMMemoryBytes)
	assert.Equal(t, defaultVMCPUs, cfg.VMCPUs)
	assert.Equal(t, defaultConnTimeout, cfg.ConnectionTimeout)
	assert.False(t, cfg.UsesFullCreate())
}

func TestBuilder(t *testing.T) {
	cfg := NewBuilder().
		SocketPath("/tmp/custom.sock").
		VsockPort(9999).
		AddVMAssetPath("/srv/assets").
		VMMemory(4 << 30).
		VMCPUs(8).
		ConnectionTimeout(45 * time.Second).
		AddDisk(Disk{Path: "/dev/disk1", SizeMB: 1024}).
		Network("bridge", "en0").
		Build()

	assert.Equal(t, "/tmp/custom.sock", cfg.SocketPath)
	assert.EqualValues(t, 9999, cfg.VsockPort)
	assert.Equal(t, []string{"/srv/assets"}, cfg.VMAssetPaths)
	assert.EqualValues(t, 4<<30, cfg.VMMemoryBytes)
	assert.Equal(t, 8, cfg.VMCPUs)
	assert.Equal(t, 45*time.Second, cfg.ConnectionTimeout)
	assert.True(t, cfg.UsesFullCreate())
}

func TestFromEnvOverridesAndIgnoresBadValues(t *testing.T) {
	t.Setenv(EnvSocketPath, "/tmp/env.sock")
	t.Setenv(EnvVsockPort, "not-a-number")
	t.Setenv(EnvVMAssetPaths, "/a:/b::/c")
	t.Setenv(EnvVMMemory, "1073741824")
	t.Setenv(EnvVMCPUs, "2")
	t.Setenv(EnvConnectionTimeout, "60")

	cfg := FromEnv()

	assert.Equal(t, "/tmp/env.sock", cfg.SocketPath)
	assert.Equal(t, defaultVsockPort, cfg.VsockPort, "unparseable vsock port keeps the default")
	assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.VMAssetPaths)
	assert.EqualValues(t, 1073741824, cfg.VMMemoryBytes)
	assert.Equal(t, 2, cfg.VMCPUs)
	assert.Equal(t, 60*time.Second, cfg.ConnectionTimeout)
}

func TestAssetSearchPathsOrderAndDedup(t *testing.T) {
	cfg := Default()
	cfg.VMAssetPaths = []string{"/custom", "/usr/share/libcrun-shim"}

	paths := cfg.AssetSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/custom", paths[0])
	assert.Equal(t, 1, countOccurrences(paths, "/usr/share/libcrun-shim"))
}

func TestValidateAcceptsDefault(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsLowMemory(t *testing.T) {
	cfg := Default()
	cfg.VMMemoryBytes = minVMMemoryBytes - 1

	err := cfg.Validate()
	require.Error(t, err)
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindValidation, kind)
}

func TestValidateRejectsZeroCPUs(t *testing.T) {
	cfg := Default()
	cfg.VMCPUs = 0

	err := cfg.Validate()
	require.Error(t, err)
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindValidation, kind)
}

func TestValidateRejectsZeroVsockPort(t *testing.T) {
	cfg := Default()
	cfg.VsockPort = 0

	err := cfg.Validate()
	require.Error(t, err)
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindValidation, kind)
}

func countOccurrences(haystack []string, needle string) int {
	n := 0
	for _, v := range haystack {
		if v == needle {
			n++
		}
	}
	return n
}
