package main

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/eventbus"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/runtime"
	"github.com/cuemby/libcrun-shim/pkg/vm"
)

// shimClient bundles a Facade with the teardown its construction requires.
// One-shot subcommands build one, issue a single call, and close it; serve
// builds one and keeps it open for the life of the process.
type shimClient struct {
	facade    *runtime.Facade
	bus       *eventbus.Bus
	lifecycle *vm.Lifecycle
}

// newShimClient wires a backend for cfg: on darwin it brings up (or falls
// back to an externally managed) VM via pkg/vm and talks to its guest
// agent over RPC; everywhere else it talks to containerd in-process.
// Callers that only issue a single request should prefer a short-lived
// client like this one over holding a VM bridge open across invocations.
func newShimClient(ctx context.Context, cfg config.RuntimeConfig) *shimClient {
	lifecycle := vm.Start(ctx, cfg)
	backend := runtime.NewDefault(ctx, cfg, lifecycle)
	bus := eventbus.New(eventbus.DefaultCapacity)
	return &shimClient{
		facade:    runtime.NewFacade(backend, bus),
		bus:       bus,
		lifecycle: lifecycle,
	}
}

// Close tears down whatever this client brought up. On the VM path this
// means destroying any bridge it created; it has no effect on an
// externally managed (Fallback) VM beyond dropping the RPC connection.
func (c *shimClient) Close(ctx context.Context) {
	c.bus.Stop()
	c.lifecycle.Shutdown(ctx)
}

func logPhase(c *shimClient) {
	log.Logger.Debug().Str("vm_phase", c.lifecycle.Phase().String()).Msg("vm lifecycle phase")
}
