// Package embedded provides the Linux self-managed containerd fallback:
// when no system containerd is reachable at the well-known socket,
// ContainerdManager launches one itself from a binary already on PATH so
// NativeBackend still gets a real engine instead of degrading to
// in-memory-only state tracking.
package embedded

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/rs/zerolog"
)

const (
	// DefaultDataDir is where the self-managed containerd keeps its root
	// and state directories when no override is given.
	DefaultDataDir = "/var/lib/libcrun-shim"

	// ContainerdSocketPath is the socket the self-managed containerd
	// listens on. It is distinct from the system default
	// (/run/containerd/containerd.sock) so the two can coexist.
	ContainerdSocketPath = "/run/libcrun-shim-containerd/containerd.sock"

	// ContainerdConfigPath is the generated config file passed to
	// containerd via --config.
	ContainerdConfigPath = "/etc/libcrun-shim-containerd/config.toml"
)

// ContainerdManager launches and supervises a containerd process for hosts
// that have no containerd already running. It does not bundle a binary:
// the containerd executable must already be installed and on PATH (e.g.
// via the distro package or a prior `containerd` install), since shipping
// a real containerd binary inside this module would mean vendoring a
// multi-megabyte third-party binary into source control.
type ContainerdManager struct {
	dataDir     string
	socketPath  string
	configPath  string
	binaryPath  string
	cmd         *exec.Cmd
	useExternal bool
	logger      zerolog.Logger
}

// NewContainerdManager constructs a manager rooted at dataDir. When
// useExternal is true, Start and GetSocketPath assume a system containerd
// is already running and the manager never spawns its own process.
func NewContainerdManager(dataDir string, useExternal bool) (*ContainerdManager, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return &ContainerdManager{
		dataDir:     dataDir,
		socketPath:  ContainerdSocketPath,
		configPath:  ContainerdConfigPath,
		useExternal: useExternal,
		logger:      log.WithComponent("embedded-containerd"),
	}, nil
}

// Start launches containerd, generating its config file first. A no-op
// when the manager is configured to use an external containerd.
func (cm *ContainerdManager) Start(ctx context.Context) error {
	if cm.useExternal {
		cm.logger.Info().Msg("using external containerd, skipping self-managed start")
		return nil
	}

	binaryPath, err := cm.resolveBinary()
	if err != nil {
		return fmt.Errorf("failed to locate containerd binary: %w", err)
	}
	cm.binaryPath = binaryPath

	if err := cm.createConfig(); err != nil {
		return fmt.Errorf("failed to create containerd config: %w", err)
	}

	socketDir := filepath.Dir(cm.socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	cm.logger.Info().Str("socket", cm.socketPath).Msg("starting self-managed containerd")

	cm.cmd = exec.CommandContext(ctx, cm.binaryPath,
		"--config", cm.configPath,
		"--address", cm.socketPath,
		"--root", filepath.Join(cm.dataDir, "containerd"),
		"--state", filepath.Join(cm.dataDir, "containerd-state"),
	)
	cm.cmd.Stdout = &logWriter{logger: cm.logger, level: "info"}
	cm.cmd.Stderr = &logWriter{logger: cm.logger, level: "error"}

	if err := cm.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start containerd: %w", err)
	}

	if err := cm.waitForReady(ctx, 30*time.Second); err != nil {
		cm.Stop()
		return fmt.Errorf("containerd failed to become ready: %w", err)
	}

	cm.logger.Info().Msg("self-managed containerd started")
	go cm.monitor(ctx)

	return nil
}

// Stop gracefully shuts down the managed containerd process, force-killing
// it if it does not exit within 10 seconds of SIGTERM. A no-op when the
// manager is configured to use an external containerd or never started one.
func (cm *ContainerdManager) Stop() error {
	if cm.useExternal || cm.cmd == nil || cm.cmd.Process == nil {
		return nil
	}

	cm.logger.Info().Msg("stopping self-managed containerd")

	if err := cm.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		cm.logger.Error().Err(err).Msg("failed to send SIGTERM")
	}

	done := make(chan error, 1)
	go func() {
		done <- cm.cmd.Wait()
	}()

	select {
	case <-time.After(10 * time.Second):
		cm.logger.Warn().Msg("containerd did not stop gracefully, force killing")
		if err := cm.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill containerd: %w", err)
		}
		<-done
	case err := <-done:
		if err != nil && err.Error() != "signal: terminated" {
			cm.logger.Error().Err(err).Msg("containerd exited with error")
		}
	}

	cm.logger.Info().Msg("self-managed containerd stopped")
	return nil
}

// GetSocketPath returns the socket the managed (or external) containerd
// listens on.
func (cm *ContainerdManager) GetSocketPath() string {
	if cm.useExternal {
		return "/run/containerd/containerd.sock"
	}
	return cm.socketPath
}

// resolveBinary locates a containerd executable on PATH, caching nothing:
// a stale cached path across a PATH change would be a worse failure mode
// than the lookup cost.
func (cm *ContainerdManager) resolveBinary() (string, error) {
	path, err := exec.LookPath("containerd")
	if err != nil {
		return "", fmt.Errorf("containerd not found on PATH: %w", err)
	}
	return path, nil
}

// createConfig writes a minimal containerd config enabling the CRI plugin
// with the runc v2 runtime.
func (cm *ContainerdManager) createConfig() error {
	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	config := `version = 2

[plugins]
  [plugins."io.containerd.grpc.v1.cri"]
    sandbox_image = "registry.k8s.io/pause:3.9"

    [plugins."io.containerd.grpc.v1.cri".containerd]
      snapshotter = "overlayfs"

      [plugins."io.containerd.grpc.v1.cri".containerd.runtimes]
        [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc]
          runtime_type = "io.containerd.runc.v2"

          [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = true
`

	if err := os.WriteFile(cm.configPath, []byte(config), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// waitForReady polls for the socket to appear.
func (cm *ContainerdManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for containerd to be ready")
		case <-ticker.C:
			if _, err := os.Stat(cm.socketPath); err == nil {
				// TODO: dial the socket and call the gRPC version service
				// instead of trusting the file's existence.
				return nil
			}
		}
	}
}

// monitor logs (but does not yet act on) an unexpected containerd exit.
func (cm *ContainerdManager) monitor(ctx context.Context) {
	if cm.cmd == nil || cm.cmd.Process == nil {
		return
	}

	err := cm.cmd.Wait()

	select {
	case <-ctx.Done():
		cm.logger.Info().Msg("containerd monitor exiting, context cancelled")
		return
	default:
	}

	if err != nil {
		cm.logger.Error().Err(err).Msg("containerd process exited unexpectedly")
	} else {
		cm.logger.Warn().Msg("containerd process exited unexpectedly with no error")
	}

	// TODO: restart with backoff instead of leaving NativeBackend pointed
	// at a dead engine until the next process restart.
}

// logWriter adapts a subprocess's stdout/stderr into structured log lines.
type logWriter struct {
	logger zerolog.Logger
	level  string
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	if lw.level == "error" {
		lw.logger.Error().Msg(string(p))
	} else {
		lw.logger.Info().Msg(string(p))
	}
	return len(p), nil
}

// EnsureContainerd constructs a ContainerdManager and starts it: unless
// useExternal is set, that launches a self-managed containerd. It does not
// probe for an already-running containerd itself; the caller decides when
// to call it. Linux only: on macOS the VM
// bridge reaches the in-guest agent directly and has no use for a host
// containerd process.
func EnsureContainerd(ctx context.Context, dataDir string, useExternal bool) (*ContainerdManager, error) {
	manager, err := NewContainerdManager(dataDir, useExternal)
	if err != nil {
		return nil, err
	}
	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}
