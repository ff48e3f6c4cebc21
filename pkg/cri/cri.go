// Package cri defines the subset of the Kubernetes Container Runtime
// Interface's wire types this shim's data model can be projected onto.
// There is no gRPC service behind these types: wiring a kubelet-facing CRI
// endpoint would mean adopting k8s.io/cri-api and a full gRPC server, which
// is out of scope here. The types exist so a future CRI shim layer has
// somewhere to start from, and so ContainerRecord/MetricsRecord have a
// documented mapping onto the interface kubelet actually speaks.
package cri

import "github.com/cuemby/libcrun-shim/pkg/model"

// ContainerState mirrors the CRI ContainerState enum.
type ContainerState int32

const (
	ContainerCreated ContainerState = iota
	ContainerRunning
	ContainerExited
	ContainerUnknown
)

// ContainerStateFromRecord maps our internal status onto the CRI enum.
func ContainerStateFromRecord(status model.ContainerStatus) ContainerState {
	switch status {
	case model.StatusCreated:
		return ContainerCreated
	case model.StatusRunning:
		return ContainerRunning
	case model.StatusStopped:
		return ContainerExited
	default:
		return ContainerUnknown
	}
}

// ContainerMetadata identifies a container within a pod sandbox.
type ContainerMetadata struct {
	Name    string
	Attempt uint32
}

// ImageSpec identifies an image by reference.
type ImageSpec struct {
	Image       string
	Annotations map[string]string
}

// Container is the CRI-facing summary returned by ListContainers.
type Container struct {
	ID           string
	PodSandboxID string
	Metadata     ContainerMetadata
	Image        ImageSpec
	ImageRef     string
	State        ContainerState
	CreatedAt    int64
	Labels       map[string]string
	Annotations  map[string]string
}

// ContainerFromRecord projects a model.ContainerRecord into the CRI
// container summary, as a RuntimeService.ListContainers implementation
// would when this shim is eventually wired up to kubelet.
func ContainerFromRecord(rec model.ContainerRecord, img model.ImageRecord) Container {
	return Container{
		ID:       rec.ID,
		Metadata: ContainerMetadata{Name: rec.ID},
		Image:    ImageSpec{Image: img.Repository + ":" + img.Reference},
		ImageRef: img.ContentID,
		State:    ContainerStateFromRecord(rec.Status),
	}
}

// ContainerStatusInfo is the CRI-facing detailed status for one container.
type ContainerStatusInfo struct {
	ID         string
	Metadata   ContainerMetadata
	State      ContainerState
	CreatedAt  int64
	StartedAt  int64
	FinishedAt int64
	ExitCode   int32
	Reason     string
	Message    string
}

// ExecSyncResponse is the CRI-facing response to a synchronous exec call.
type ExecSyncResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// ExecSyncResponseFromResult builds an ExecSyncResponse from the facade's
// Exec return values.
func ExecSyncResponseFromResult(exitCode int32, stdout, stderr string) ExecSyncResponse {
	return ExecSyncResponse{
		Stdout:   []byte(stdout),
		Stderr:   []byte(stderr),
		ExitCode: exitCode,
	}
}

// VersionResponse is the CRI Version RPC's response shape.
type VersionResponse struct {
	Version           string
	RuntimeName       string
	RuntimeVersion    string
	RuntimeAPIVersion string
}
