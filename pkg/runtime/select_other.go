//go:build !darwin

package runtime

import (
	"context"
	"os"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/embedded"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/vm"
)

const systemContainerdSocket = "/run/containerd/containerd.sock"

// NewDefault builds the platform default backend: the native in-process
// backend (optionally containerd-backed). On non-Linux hosts other than
// macOS that is the stub NativeBackend, whose operations all return an
// error; lifecycle is not used here.
//
// It prefers a system containerd if the well-known socket already exists;
// failing that it tries to launch a self-managed one via pkg/embedded
// before finally settling for NativeBackend's in-memory-only tracking.
func NewDefault(ctx context.Context, cfg config.RuntimeConfig, lifecycle *vm.Lifecycle) Runtime {
	socketPath := systemContainerdSocket

	if _, err := os.Stat(socketPath); err != nil {
		logger := log.WithComponent("runtime-select")
		mgr, err := embedded.EnsureContainerd(ctx, embedded.DefaultDataDir, false)
		if err != nil {
			logger.Warn().Err(err).Msg("no system containerd and self-managed start failed, tracking state in-process only")
		} else {
			socketPath = mgr.GetSocketPath()
			logger.Info().Str("socket", socketPath).Msg("using self-managed containerd")
		}
	}

	return NewNativeBackend(socketPath)
}
