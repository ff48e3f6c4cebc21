// Package config builds the RuntimeConfig that parameterizes every other
// component: socket paths, vsock port, VM asset search paths, VM sizing,
// and connection timeouts. It can be built via defaults, a fluent builder,
// or environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

const (
	defaultSocketPath        = "/tmp/libcrun-shim.sock"
	defaultVsockPort  uint32 = 1234
	defaultVMMemory   int64  = 2 * 1024 * 1024 * 1024 // 2 GiB
	defaultVMCPUs     int    = 4
	defaultConnTimeout       = 30 * time.Second

	// minVMMemoryBytes is the platform-defined minimum VM memory: below
	// this a guest kernel cannot reliably boot and run the in-guest agent.
	minVMMemoryBytes int64 = 128 * 1024 * 1024 // 128 MiB

	// maxVsockPort is 2^32-1, the invariant's documented upper bound.
	maxVsockPort uint32 = 4294967295
)

// Disk describes a block device attached to the VM.
type Disk struct {
	Path     string
	SizeMB   int64
	ReadOnly bool
}

// RuntimeConfig parameterizes the transport, VM bridge, and VM lifecycle.
type RuntimeConfig struct {
	SocketPath          string
	VsockPort           uint32
	VMAssetPaths        []string
	VMMemoryBytes       int64
	VMCPUs              int
	ConnectionTimeout   time.Duration
	Disks               []Disk
	NetworkMode         string
	NetworkBridgeIface  string
}

// Default returns a RuntimeConfig with every field at its documented
// default value.
func Default() RuntimeConfig {
	return RuntimeConfig{
		SocketPath:        defaultSocketPath,
		VsockPort:         defaultVsockPort,
		VMAssetPaths:      nil,
		VMMemoryBytes:     defaultVMMemory,
		VMCPUs:            defaultVMCPUs,
		ConnectionTimeout: defaultConnTimeout,
		NetworkMode:       "nat",
	}
}

// Validate checks the invariants every caller depends on: memory at least
// the platform minimum, at least one vCPU, and a vsock port in [1, 2^32-1].
// It returns the first violation found rather than collecting all of them.
func (c RuntimeConfig) Validate() error {
	if c.VMMemoryBytes < minVMMemoryBytes {
		return shimerr.Validation("vm_memory", "must be at least "+strconv.FormatInt(minVMMemoryBytes, 10)+" bytes")
	}
	if c.VMCPUs < 1 {
		return shimerr.Validation("vm_cpus", "must be at least 1")
	}
	if c.VsockPort < 1 || c.VsockPort > maxVsockPort {
		return shimerr.Validation("vsock_port", "must be in [1, 4294967295]")
	}
	return nil
}

// UsesFullCreate reports whether the lifecycle must call CreateVMFull
// instead of CreateVM: true when disks are configured or the network mode
// is not the default "nat".
func (c RuntimeConfig) UsesFullCreate() bool {
	return len(c.Disks) > 0 || (c.NetworkMode != "" && c.NetworkMode != "nat")
}

// AssetSearchPaths returns the effective, de-duplicated VM asset search
// order: the caller's configured paths first, then a fixed list of system
// and user-local data directories, then the current working directory.
func (c RuntimeConfig) AssetSearchPaths() []string {
	paths := append([]string{}, c.VMAssetPaths...)
	paths = append(paths, defaultAssetPaths()...)

	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func defaultAssetPaths() []string {
	paths := []string{
		"/usr/share/libcrun-shim",
		"/usr/local/share/libcrun-shim",
		"/opt/libcrun-shim",
	}
	if dataDir := userDataDir(); dataDir != "" {
		paths = append(paths, filepath.Join(dataDir, "libcrun-shim"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".libcrun-shim"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	return paths
}

func userDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share")
	}
	return ""
}

// Builder constructs a RuntimeConfig through fluent method chaining,
// starting from Default().
type Builder struct {
	cfg RuntimeConfig
}

// NewBuilder returns a Builder seeded with Default().
func NewBuilder() *Builder {
	return &Builder{cfg: Default()}
}

func (b *Builder) SocketPath(path string) *Builder {
	b.cfg.SocketPath = path
	return b
}

func (b *Builder) VsockPort(port uint32) *Builder {
	b.cfg.VsockPort = port
	return b
}

func (b *Builder) AddVMAssetPath(path string) *Builder {
	b.cfg.VMAssetPaths = append(b.cfg.VMAssetPaths, path)
	return b
}

func (b *Builder) VMMemory(bytes int64) *Builder {
	b.cfg.VMMemoryBytes = bytes
	return b
}

func (b *Builder) VMCPUs(n int) *Builder {
	b.cfg.VMCPUs = n
	return b
}

func (b *Builder) ConnectionTimeout(d time.Duration) *Builder {
	b.cfg.ConnectionTimeout = d
	return b
}

func (b *Builder) AddDisk(d Disk) *Builder {
	b.cfg.Disks = append(b.cfg.Disks, d)
	return b
}

func (b *Builder) Network(mode, bridgeIface string) *Builder {
	b.cfg.NetworkMode = mode
	b.cfg.NetworkBridgeIface = bridgeIface
	return b
}

// Build returns the constructed RuntimeConfig.
func (b *Builder) Build() RuntimeConfig {
	return b.cfg
}

// Environment variable names read by FromEnv.
const (
	EnvSocketPath        = "LIBCRUN_SOCKET_PATH"
	EnvVsockPort         = "LIBCRUN_VSOCK_PORT"
	EnvVMAssetPaths      = "LIBCRUN_VM_ASSET_PATHS"
	EnvVMMemory          = "LIBCRUN_VM_MEMORY"
	EnvVMCPUs            = "LIBCRUN_VM_CPUS"
	EnvConnectionTimeout = "LIBCRUN_CONNECTION_TIMEOUT"
)

// FromEnv builds a RuntimeConfig starting from Default() and overriding
// each field whose environment variable is set and parses cleanly. A
// variable that is set but fails to parse is ignored and the default for
// that field is kept — there is no partial-override error path.
func FromEnv() RuntimeConfig {
	cfg := Default()

	if v := os.Getenv(EnvSocketPath); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv(EnvVsockPort); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.VsockPort = uint32(n)
		}
	}
	if v := os.Getenv(EnvVMAssetPaths); v != "" {
		for _, p := range strings.Split(v, ":") {
			if p != "" {
				cfg.VMAssetPaths = append(cfg.VMAssetPaths, p)
			}
		}
	}
	if v := os.Getenv(EnvVMMemory); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.VMMemoryBytes = n
		}
	}
	if v := os.Getenv(EnvVMCPUs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VMCPUs = n
		}
	}
	if v := os.Getenv(EnvConnectionTimeout); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConnectionTimeout = time.Duration(n) * time.Second
		}
	}

	return cfg
}
