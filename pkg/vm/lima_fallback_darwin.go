//go:build darwin

package vm

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/embedded"
	"github.com/cuemby/libcrun-shim/pkg/log"
)

// tryExternalVM is the Fallback-path detector on darwin: when the native
// vz bridge could not be created, configured, or started, this tries to
// reach (creating it if necessary) a Lima-managed Linux VM instead, and
// returns the host-side socket path its guest agent is forwarded to.
// ok is false when Lima isn't installed or the fallback VM never becomes
// reachable, in which case the caller keeps using cfg.SocketPath as-is.
func tryExternalVM(ctx context.Context, cfg config.RuntimeConfig) (socketPath string, ok bool) {
	logger := log.WithComponent("vm-lifecycle")

	manager, err := embedded.NewLimaManager(cfg.SocketPath)
	if err != nil {
		logger.Debug().Err(err).Msg("lima fallback manager unavailable")
		return "", false
	}

	if err := manager.Start(ctx); err != nil {
		logger.Debug().Err(err).Msg("lima fallback vm not reachable")
		return "", false
	}

	path := manager.GetSocketPath()
	if path == "" {
		return "", false
	}
	return path, true
}
