// Package model holds the value types shared across the wire protocol,
// the facade, and both runtime back-ends: container configuration and
// records, image references, metrics, health, logs, and lifecycle events.
package model

import (
	"time"

	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

var (
	errEmptyID     = shimerr.Validation("id", "must not be empty")
	errEmptyRootfs = shimerr.Validation("rootfs", "must not be empty")
	errEmptyArgv   = shimerr.Validation("argv", "must not be empty")
)

// NetworkMode is the container's network attachment mode.
type NetworkMode string

const (
	NetworkNone      NetworkMode = "none"
	NetworkBridge    NetworkMode = "bridge"
	NetworkHost      NetworkMode = "host"
	NetworkContainer NetworkMode = "container"
)

// StdioConfig controls how the container's standard streams are attached.
type StdioConfig struct {
	TTY        bool
	OpenStdin  bool
	StdinPath  string
	StdoutPath string
	StderrPath string
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	HostPort      uint16
	ContainerPort uint16
	Protocol      string // "tcp" or "udp", defaults to "tcp"
	HostIP        string
}

// NetworkInterface attaches an additional guest network interface.
type NetworkInterface struct {
	Name          string
	InterfaceType string
	Config        map[string]string
}

// NetworkConfig groups a container's network attachment.
type NetworkConfig struct {
	Mode         NetworkMode // defaults to NetworkBridge
	PortMappings []PortMapping
	Interfaces   []NetworkInterface
}

// VolumeMount binds a host path into the container's mount namespace.
type VolumeMount struct {
	Source      string
	Destination string
	Options     []string
}

// ResourceLimits caps the container's resource usage. Every field is a
// pointer so "unset" and "zero" are distinguishable.
type ResourceLimits struct {
	CPU         *float64
	Memory      *int64
	MemorySwap  *int64
	Pids        *int64
	BlkioWeight *uint16 // 10-1000
}

// HealthProbe defines the command used to determine container health.
type HealthProbe struct {
	Argv        []string
	IntervalS   int
	TimeoutS    int
	Retries     int
	StartPeriodS int
}

// ContainerConfig is the full specification of a container to create.
// Id, Rootfs, and a non-empty Argv are mandatory before Create is called.
type ContainerConfig struct {
	ID         string
	Rootfs     string
	Argv       []string
	Env        []string
	WorkingDir string // defaults to "/"
	Stdio      StdioConfig
	Network    NetworkConfig
	Volumes    []VolumeMount
	Resources  ResourceLimits
	Health     *HealthProbe
}

// Validate checks the mandatory fields required before any Create call.
func (c ContainerConfig) Validate() error {
	if c.ID == "" {
		return errEmptyID
	}
	if c.Rootfs == "" {
		return errEmptyRootfs
	}
	if len(c.Argv) == 0 {
		return errEmptyArgv
	}
	return nil
}

// ContainerStatus is the lifecycle state of a container record.
type ContainerStatus string

const (
	StatusCreated ContainerStatus = "Created"
	StatusRunning ContainerStatus = "Running"
	StatusStopped ContainerStatus = "Stopped"
)

// ContainerRecord is the minimal per-container state returned by List,
// Create, and status lookups.
type ContainerRecord struct {
	ID     string
	Status ContainerStatus
	Pid    *int
}

// ImageRecord describes a resolved image.
type ImageRecord struct {
	Registry   string
	Repository string
	Reference  string
	// IsDigest is true when Reference is a content digest (@sha256:...)
	// rather than a tag.
	IsDigest  bool
	ContentID string
	SizeBytes int64
	Created   time.Time
	Arch      string
	OS        string
	Labels    map[string]string
}

// CPUMetrics is a CPU usage snapshot.
type CPUMetrics struct {
	TotalNanos     uint64
	UserNanos      uint64
	SystemNanos    uint64
	PerCPU         []uint64
	ThrottledCount uint64
	ThrottledNanos uint64
	Percent        float64
}

// MemoryMetrics is a memory usage snapshot.
type MemoryMetrics struct {
	UsageBytes    uint64
	MaxUsageBytes uint64
	LimitBytes    uint64
	CacheBytes    uint64
	RSSBytes      uint64
	SwapBytes     uint64
	Percent       float64
}

// BlkioMetrics is a block-device I/O snapshot.
type BlkioMetrics struct {
	ReadBytes  uint64
	WriteBytes uint64
	ReadOps    uint64
	WriteOps   uint64
}

// NetworkMetrics is a network I/O snapshot.
type NetworkMetrics struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	RxErrors  uint64
	TxErrors  uint64
	RxDropped uint64
	TxDropped uint64
}

// PidsMetrics is a process-count snapshot.
type PidsMetrics struct {
	Current uint64
	Limit   *uint64
}

// MetricsRecord is a full per-container metrics snapshot.
type MetricsRecord struct {
	ID        string
	CPU       CPUMetrics
	Memory    MemoryMetrics
	Blkio     BlkioMetrics
	Network   NetworkMetrics
	Pids      PidsMetrics
	Timestamp int64 // Unix seconds
}

// HealthState is the outcome of the most recent health probe evaluation.
type HealthState string

const (
	HealthNone      HealthState = "None"
	HealthStarting  HealthState = "Starting"
	HealthHealthy   HealthState = "Healthy"
	HealthUnhealthy HealthState = "Unhealthy"
)

// HealthRecord is a container's current health status.
type HealthRecord struct {
	ID            string
	State         HealthState
	FailingStreak int
	LastOutput    string
	LastCheck     int64 // Unix seconds
}

// LogOptions controls what Logs returns.
type LogOptions struct {
	Tail       int
	Since      int64 // Unix seconds, 0 = unbounded
	Timestamps bool
}

// LogsRecord carries a container's captured output.
type LogsRecord struct {
	ID        string
	Stdout    string
	Stderr    string
	Timestamp int64 // Unix seconds
}

// EventType enumerates the container lifecycle event kinds.
type EventType string

const (
	EventCreate    EventType = "Create"
	EventStart     EventType = "Start"
	EventStop      EventType = "Stop"
	EventKill      EventType = "Kill"
	EventDie       EventType = "Die"
	EventDelete    EventType = "Delete"
	EventPause     EventType = "Pause"
	EventUnpause   EventType = "Unpause"
	EventHealthOk  EventType = "HealthOk"
	EventHealthFail EventType = "HealthFail"
	EventOom       EventType = "Oom"
	EventExecStart EventType = "ExecStart"
	EventExecDie   EventType = "ExecDie"
)

// Event is a single container lifecycle event.
type Event struct {
	ContainerID string
	Type        EventType
	ExitCode    *int32
	Signal      *int32
	Timestamp   int64 // Unix seconds
}

// NewEvent constructs an Event stamped with the current time.
func NewEvent(id string, t EventType) Event {
	return Event{ContainerID: id, Type: t, Timestamp: time.Now().Unix()}
}

// WithExitCode returns a copy of e with ExitCode set.
func (e Event) WithExitCode(code int32) Event {
	e.ExitCode = &code
	return e
}

// WithSignal returns a copy of e with Signal set.
func (e Event) WithSignal(sig int32) Event {
	e.Signal = &sig
	return e
}
