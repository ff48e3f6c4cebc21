// Package vmbridge wraps the native Virtualization API behind a small,
// platform-neutral handle: create a VM, start/stop it asynchronously, poll
// its state, and hand back a connected vsock file descriptor. On darwin it
// is backed by Code-Hex/vz; everywhere else it reports itself unavailable
// so callers fall back to an externally managed VM.
package vmbridge

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
)

// State mirrors the native VM's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateStopped
	StatePaused
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Bridge is a single VM instance handle. At most one Start and one Stop
// may be in flight at a time; after a successful Start the handle is
// usable for VsockConnect. Destroy always stops the VM if still running
// and frees every associated resource.
type Bridge interface {
	// CreateVM configures a minimal VM: kernel, initramfs, memory, cpus,
	// NAT networking, no extra disks.
	CreateVM(kernel, initramfs string, memoryBytes int64, cpus int) error
	// CreateVMFull additionally configures disks and a non-default
	// network mode; used whenever cfg.UsesFullCreate() is true.
	CreateVMFull(kernel, initramfs string, memoryBytes int64, cpus int, disks []config.Disk, networkMode, bridgeIface string) error
	// Start begins booting the VM. It blocks until the native completion
	// signal arrives or ctx is done.
	Start(ctx context.Context) error
	// Stop requests a graceful shutdown and blocks until the native
	// completion signal arrives or ctx is done.
	Stop(ctx context.Context) error
	// GetState is safe to call concurrently with any other operation.
	GetState() State
	CanStart() bool
	CanStop() bool
	// VsockConnect asks the native bridge for a connected file descriptor
	// on the guest vsock port, blocking until ctx is done or the
	// connection completes.
	VsockConnect(ctx context.Context, port uint32) (fd int, err error)
	// Destroy stops the VM if still running and releases every resource
	// held by the handle. Safe to call more than once.
	Destroy()
}

// Available reports whether the native Virtualization API can be used on
// this host at all, before any handle is created.
func Available() bool {
	return available()
}

// New creates a fresh, unconfigured Bridge handle.
func New() (Bridge, error) {
	return newBridge()
}
