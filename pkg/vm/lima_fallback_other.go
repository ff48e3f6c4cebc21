//go:build !darwin

package vm

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
)

// tryExternalVM has no Lima-based fallback off darwin; the native backend
// handles non-darwin hosts directly, so Fallback here just means "use
// cfg.SocketPath unmodified".
func tryExternalVM(ctx context.Context, cfg config.RuntimeConfig) (socketPath string, ok bool) {
	return "", false
}
