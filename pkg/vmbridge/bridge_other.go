//go:build !darwin

package vmbridge

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// On every non-darwin platform there is no native bridge: the VM lifecycle
// always takes the Fallback branch and assumes an externally managed VM.
func available() bool { return false }

func newBridge() (Bridge, error) {
	return nil, shimerr.Runtime("vm bridge unavailable: native virtualization is darwin-only")
}

// stubBridge exists only so the Bridge interface has a concrete type on
// this platform for tests that want to exercise error paths; newBridge
// never actually returns one.
type stubBridge struct{}

func (stubBridge) CreateVM(string, string, int64, int) error { return errUnavailable }
func (stubBridge) CreateVMFull(string, string, int64, int, []config.Disk, string, string) error {
	return errUnavailable
}
func (stubBridge) Start(context.Context) error { return errUnavailable }
func (stubBridge) Stop(context.Context) error  { return errUnavailable }
func (stubBridge) GetState() State             { return StateError }
func (stubBridge) CanStart() bool              { return false }
func (stubBridge) CanStop() bool               { return false }
func (stubBridge) VsockConnect(context.Context, uint32) (int, error) {
	return 0, errUnavailable
}
func (stubBridge) Destroy() {}

var errUnavailable = shimerr.Runtime("vm bridge unavailable on this platform")
