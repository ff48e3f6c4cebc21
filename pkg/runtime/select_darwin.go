//go:build darwin

package runtime

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/rpcclient"
	"github.com/cuemby/libcrun-shim/pkg/vm"
)

// NewDefault builds the platform default backend: the VM-RPC backend,
// dialing through lifecycle's dialer (vsock when available, Unix socket
// otherwise). It dials using lifecycle.Config() rather than the cfg
// argument: enterFallback can rewrite SocketPath after a Lima fallback VM
// is found, and lifecycle.Config() is the only place that mutation is
// visible. ctx is unused here since the darwin path has nothing left to
// probe once lifecycle has already brought the VM up; it exists so both
// platforms' NewDefault share one signature.
func NewDefault(ctx context.Context, cfg config.RuntimeConfig, lifecycle *vm.Lifecycle) Runtime {
	client := rpcclient.New(lifecycle.Config(), lifecycle.Dialer())
	return NewVMBackend(client)
}
