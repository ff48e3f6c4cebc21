// Package vm drives the VM lifecycle state machine: asset discovery,
// bridge creation and configuration, boot-wait and retry-connect, and
// graceful teardown. When any step fails it falls back to assuming an
// externally managed VM is already reachable, rather than surfacing an
// error to the facade.
package vm

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/metrics"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/cuemby/libcrun-shim/pkg/transport"
	"github.com/cuemby/libcrun-shim/pkg/vmbridge"
)

// Phase is a state in the VM lifecycle state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAssetsResolved
	PhaseBridgeCreated
	PhaseVMConfigured
	PhaseStarting
	PhaseRunning
	PhaseStopping
	PhaseStopped
	PhaseDestroyed
	// PhaseFallback means no bridge was created; the runtime assumes an
	// externally managed VM is already reachable on the configured
	// socket/port.
	PhaseFallback
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseAssetsResolved:
		return "AssetsResolved"
	case PhaseBridgeCreated:
		return "BridgeCreated"
	case PhaseVMConfigured:
		return "VMConfigured"
	case PhaseStarting:
		return "Starting"
	case PhaseRunning:
		return "Running"
	case PhaseStopping:
		return "Stopping"
	case PhaseStopped:
		return "Stopped"
	case PhaseDestroyed:
		return "Destroyed"
	case PhaseFallback:
		return "Fallback"
	default:
		return "Unknown"
	}
}

// allPhases lists every defined Phase, used to zero out every other
// phase's gauge value whenever one phase becomes active.
var allPhases = []Phase{
	PhaseInit, PhaseAssetsResolved, PhaseBridgeCreated, PhaseVMConfigured,
	PhaseStarting, PhaseRunning, PhaseStopping, PhaseStopped, PhaseDestroyed,
	PhaseFallback,
}

const assetKernel = "kernel"
const assetInitramfs = "initramfs.cpio.gz"

// bootGracePeriod is the fixed wait after a successful start before any
// connect attempt, to account for kernel boot and agent startup.
const bootGracePeriod = 20 * time.Second

// fallbackBootGrace is the shorter grace period used when no bridge was
// created at all (an externally managed VM is assumed to already be
// booting, or already up).
const fallbackBootGrace = 2 * time.Second

const connectRetries = 5
const connectRetryDelay = 3 * time.Second

// stopTimeout bounds how long graceful Stop waits before Destroy proceeds
// unconditionally.
const stopTimeout = 10 * time.Second

// Lifecycle owns exactly one VM bridge handle (when not in Fallback) for
// the life of the process or until Shutdown.
type Lifecycle struct {
	mu     sync.Mutex
	cfg    config.RuntimeConfig
	bridge vmbridge.Bridge
	phase  Phase
}

// Start resolves assets, creates and boots a bridge, and waits out the
// boot grace period. It never returns an error: any failure along the way
// transitions into Fallback instead, per the design's "VM bridge failures
// are non-fatal" policy. The returned Lifecycle's Phase() reports which
// path was taken.
func Start(ctx context.Context, cfg config.RuntimeConfig) *Lifecycle {
	logger := log.WithComponent("vm-lifecycle")
	l := &Lifecycle{cfg: cfg, phase: PhaseInit}

	kernel, initramfs, found := resolveAssets(cfg)
	if !found {
		logger.Warn().Msg("vm assets not found in any search path, falling back to externally managed vm")
		l.enterFallback(ctx)
		return l
	}
	l.setPhase(PhaseAssetsResolved)

	bridge, err := vmbridge.New()
	if err != nil {
		logger.Warn().Err(err).Msg("vm bridge unavailable, falling back to externally managed vm")
		l.enterFallback(ctx)
		return l
	}
	l.bridge = bridge
	l.setPhase(PhaseBridgeCreated)

	if cfg.UsesFullCreate() {
		err = bridge.CreateVMFull(kernel, initramfs, cfg.VMMemoryBytes, cfg.VMCPUs, cfg.Disks, cfg.NetworkMode, cfg.NetworkBridgeIface)
	} else {
		err = bridge.CreateVM(kernel, initramfs, cfg.VMMemoryBytes, cfg.VMCPUs)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("vm configuration failed, falling back to externally managed vm")
		bridge.Destroy()
		l.bridge = nil
		l.enterFallback(ctx)
		return l
	}
	l.setPhase(PhaseVMConfigured)

	l.setPhase(PhaseStarting)
	startCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := bridge.Start(startCtx); err != nil {
		logger.Warn().Err(err).Msg("vm start failed, falling back to externally managed vm")
		bridge.Destroy()
		l.bridge = nil
		l.enterFallback(ctx)
		return l
	}
	l.setPhase(PhaseRunning)

	logger.Info().Dur("grace_period", bootGracePeriod).Msg("vm started, waiting for boot grace period")
	sleepOrDone(ctx, bootGracePeriod)

	return l
}

// enterFallback marks the lifecycle as relying on an externally managed
// VM. On darwin it first tries to locate or start a Lima-backed VM and, if
// one becomes reachable, points the transport at its forwarded agent
// socket instead of the configured default; everywhere else, or if Lima
// isn't available, it just waits out the shorter boot grace and assumes
// cfg.SocketPath is already reachable.
func (l *Lifecycle) enterFallback(ctx context.Context) {
	if path, ok := tryExternalVM(ctx, l.cfg); ok {
		log.WithComponent("vm-lifecycle").Info().Str("socket_path", path).
			Msg("using lima fallback vm socket")
		l.cfg.SocketPath = path
	} else {
		sleepOrDone(ctx, fallbackBootGrace)
	}
	l.setPhase(PhaseFallback)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Phase reports the lifecycle's current state.
func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// setPhase transitions to p and refreshes the VM phase gauge: p's label
// set to 1, every other defined phase's label set to 0.
func (l *Lifecycle) setPhase(p Phase) {
	l.phase = p
	for _, candidate := range allPhases {
		value := 0.0
		if candidate == p {
			value = 1.0
		}
		metrics.VMPhase.WithLabelValues(candidate.String()).Set(value)
	}
}

// Config returns the RuntimeConfig this lifecycle was started with,
// including any SocketPath rewrite enterFallback made after finding a
// Lima fallback VM.
func (l *Lifecycle) Config() config.RuntimeConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Dialer returns the vsock dialer the transport layer should prefer, or
// nil in Fallback mode (meaning: Unix socket only).
func (l *Lifecycle) Dialer() transport.VsockDialer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bridge == nil {
		return nil
	}
	return l.bridge
}

// WaitUntilReady polls a connect attempt every 100ms until one succeeds or
// timeout elapses. It is a lower-level alternative to the fixed boot-wait
// in Start plus the 5x3s retry in Connect, useful for callers (tests,
// health checks) that want a tighter poll loop.
func (l *Lifecycle) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		stream, err := transport.Dial(ctx, l.cfg, l.Dialer())
		if err == nil {
			stream.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return shimerr.RuntimeWithCause(err, "vm did not become ready within %s", timeout)
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return shimerr.RuntimeWithCause(ctx.Err(), "wait until ready cancelled")
		}
	}
}

// Connect retries a connect attempt up to connectRetries times with
// connectRetryDelay between attempts, trying vsock (via the bridge) before
// falling through to the Unix socket on each attempt, per the boot-wait
// retry contract.
func (l *Lifecycle) Connect(ctx context.Context) (transport.Stream, error) {
	var lastErr error
	for attempt := 1; attempt <= connectRetries; attempt++ {
		stream, err := transport.Dial(ctx, l.cfg, l.Dialer())
		if err == nil {
			return stream, nil
		}
		lastErr = err
		metrics.ConnectRetriesTotal.Inc()
		log.WithComponent("vm-lifecycle").Warn().
			Int("attempt", attempt).
			Err(err).
			Msg("connect attempt failed")
		if attempt == connectRetries {
			break
		}
		select {
		case <-time.After(connectRetryDelay):
		case <-ctx.Done():
			return nil, shimerr.RuntimeWithCause(ctx.Err(), "connect cancelled")
		}
	}
	return nil, shimerr.RuntimeWithCause(lastErr, "failed to connect after %d attempts", connectRetries)
}

// Shutdown gracefully stops the VM (bounded by stopTimeout) and always
// destroys the bridge handle afterwards, mirroring Drop semantics: no
// resource is left allocated once Shutdown returns.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	l.mu.Lock()
	bridge := l.bridge
	l.setPhase(PhaseStopping)
	l.mu.Unlock()

	if bridge != nil {
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := bridge.Stop(stopCtx); err != nil {
			log.WithComponent("vm-lifecycle").Warn().Err(err).Msg("graceful vm stop failed")
		}
		cancel()
		bridge.Destroy()
	}

	l.mu.Lock()
	l.setPhase(PhaseDestroyed)
	l.bridge = nil
	l.mu.Unlock()
}

func resolveAssets(cfg config.RuntimeConfig) (kernel, initramfs string, ok bool) {
	for _, base := range cfg.AssetSearchPaths() {
		k, kOk := findAsset(base, assetKernel)
		i, iOk := findAsset(base, assetInitramfs)
		if kOk && iOk {
			return k, i, true
		}
	}
	return "", "", false
}

// findAsset probes, in order: basePath itself (when its filename matches
// name), basePath/vm-assets/name, basePath/name, and two
// development-relative fallbacks (./vm-assets/name, ../vm-assets/name).
func findAsset(basePath, name string) (string, bool) {
	candidates := make([]string, 0, 5)
	if filepath.Base(basePath) == name {
		candidates = append(candidates, basePath)
	}
	candidates = append(candidates,
		filepath.Join(basePath, "vm-assets", name),
		filepath.Join(basePath, name),
		filepath.Join("vm-assets", name),
		filepath.Join("..", "vm-assets", name),
	)
	for _, c := range candidates {
		if fileExists(c) {
			return c, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
