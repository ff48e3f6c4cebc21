// +build darwin

// Package embedded holds VM managers that are heavier than the native vz
// bridge and are only reached from the Fallback path: when the native
// bridge can't be created or configured, pkg/vm tries to locate (and, if
// absent, create) a Lima-managed Linux VM instead, and talks to the guest
// agent through a socket Lima forwards to the host.
package embedded

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"
)

const (
	// LimaInstanceName is the name of the Lima instance this shim manages.
	LimaInstanceName = "libcrun-shim"

	// guestAgentSocket is the path, inside the guest, that the in-VM agent
	// listens on. Lima forwards it to a host-side socket under the
	// instance's directory (see GetSocketPath).
	guestAgentSocket = "/run/libcrun-shim/agent.sock"
)

// LimaManager manages a Lima-backed fallback VM: used only when the native
// vz bridge in pkg/vmbridge could not be created or configured, so the
// runtime can still reach a guest agent instead of surfacing an error.
type LimaManager struct {
	instanceName string
	instance     *store.Instance
	dataDir      string
	logger       zerolog.Logger
}

// NewLimaManager creates a new Lima VM manager rooted at dataDir, the
// directory mounted read-write into the guest.
func NewLimaManager(dataDir string) (*LimaManager, error) {
	logger := zerolog.New(os.Stdout).With().
		Str("component", "lima-fallback-vm").
		Timestamp().
		Logger()

	return &LimaManager{
		instanceName: LimaInstanceName,
		dataDir:      dataDir,
		logger:       logger,
	}, nil
}

// Start locates the Lima instance, creating and booting it if it doesn't
// exist yet, and waits for the forwarded agent socket to appear.
func (lm *LimaManager) Start(ctx context.Context) error {
	lm.logger.Info().Msg("starting lima fallback vm")

	if !lm.isLimaInstalled() {
		return fmt.Errorf("lima is not installed, install with: brew install lima")
	}

	inst, err := store.Inspect(lm.instanceName)
	if err == nil {
		lm.instance = inst
		lm.logger.Info().Msgf("lima instance %q already exists", lm.instanceName)

		if inst.Status == store.StatusRunning {
			lm.logger.Info().Msg("lima fallback vm already running")
			return lm.waitForReady(ctx)
		}

		lm.logger.Info().Msg("starting existing lima instance")
		if err := instance.Start(ctx, inst, "", false); err != nil {
			return fmt.Errorf("failed to start lima instance: %w", err)
		}
		return lm.waitForReady(ctx)
	}

	lm.logger.Info().Msg("creating new lima instance for fallback vm")
	if err := lm.createInstance(ctx); err != nil {
		return fmt.Errorf("failed to create lima instance: %w", err)
	}

	inst, err = store.Inspect(lm.instanceName)
	if err != nil {
		return fmt.Errorf("failed to inspect created instance: %w", err)
	}
	lm.instance = inst

	lm.logger.Info().Msg("starting lima instance")
	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("failed to start lima instance: %w", err)
	}

	if err := lm.waitForReady(ctx); err != nil {
		return fmt.Errorf("lima fallback vm failed to become ready: %w", err)
	}

	lm.logger.Info().Msg("lima fallback vm started")
	return nil
}

// Stop stops the Lima VM.
func (lm *LimaManager) Stop(ctx context.Context) error {
	if lm.instance == nil {
		return nil
	}

	lm.logger.Info().Msg("stopping lima fallback vm")
	if err := instance.StopGracefully(ctx, lm.instance, false); err != nil {
		lm.logger.Warn().Msgf("graceful stop failed: %v, forcing stop", err)
		instance.StopForcibly(lm.instance)
	}

	lm.logger.Info().Msg("lima fallback vm stopped")
	return nil
}

// GetSocketPath returns the host-side path of the Unix socket Lima
// forwards the guest agent socket to, or "" when no instance is known yet.
func (lm *LimaManager) GetSocketPath() string {
	if lm.instance == nil {
		return ""
	}

	limaHome := os.Getenv("LIMA_HOME")
	if limaHome == "" {
		home, _ := os.UserHomeDir()
		limaHome = filepath.Join(home, ".lima")
	}

	return filepath.Join(limaHome, lm.instanceName, "sock", "agent.sock")
}

// createInstance creates a new Lima instance configured to run the guest
// agent and forward its socket to the host.
func (lm *LimaManager) createInstance(ctx context.Context) error {
	config := lm.createLimaConfig()

	configYAML, err := limayaml.Marshal(&config, false)
	if err != nil {
		return fmt.Errorf("failed to marshal lima config: %w", err)
	}

	if _, err := instance.Create(ctx, lm.instanceName, configYAML, false); err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// createLimaConfig builds a minimal Lima configuration: a small Alpine
// guest, containerd as the in-guest container engine, the data directory
// mounted read-write, the guest agent socket forwarded to the host, and a
// provisioning script that installs and starts containerd and creates the
// agent's socket directory. The script does not install or start the guest
// agent itself.
func (lm *LimaManager) createLimaConfig() limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}

	cpus := 2
	memory := "2GiB"
	disk := "20GiB"

	config := limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,

		Images: []limayaml.Image{
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-aarch64.iso",
					Arch:     limayaml.AARCH64,
				},
			},
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-x86_64.iso",
					Arch:     limayaml.X8664,
				},
			},
		},

		Containerd: limayaml.Containerd{
			System: ptrBool(true),
		},

		Mounts: []limayaml.Mount{
			{
				Location: lm.dataDir,
				Writable: ptrBool(true),
			},
		},

		PortForwards: []limayaml.PortForward{
			{
				GuestSocket: guestAgentSocket,
				HostSocket:  "{{.Dir}}/sock/agent.sock",
			},
		},

		Provision: []limayaml.Provision{
			{
				Mode: limayaml.ProvisionModeSystem,
				Script: "#!/bin/sh\nset -eux -o pipefail\n" +
					"if ! command -v containerd > /dev/null; then\n  apk add containerd\nfi\n" +
					"rc-update add containerd default\nrc-service containerd start || true\n" +
					"mkdir -p /run/libcrun-shim\n",
			},
		},

		Message: "libcrun-shim fallback VM ready",
	}

	return config
}

// waitForReady polls instance status and the forwarded agent socket until
// both are up, or the 60s deadline elapses.
func (lm *LimaManager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima fallback vm to be ready")
		case <-ticker.C:
			inst, err := store.Inspect(lm.instanceName)
			if err != nil {
				lm.logger.Debug().Msgf("failed to inspect instance: %v", err)
				continue
			}

			if inst.Status == store.StatusRunning {
				lm.instance = inst
				socketPath := lm.GetSocketPath()
				if _, err := os.Stat(socketPath); err == nil {
					lm.logger.Info().Msgf("agent socket ready at %s", socketPath)
					return nil
				}
				lm.logger.Debug().Msgf("waiting for agent socket at %s", socketPath)
			}
		}
	}
}

func (lm *LimaManager) isLimaInstalled() bool {
	_, err := exec.LookPath("limactl")
	return err == nil
}

func ptrBool(b bool) *bool {
	return &b
}
