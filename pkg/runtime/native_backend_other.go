//go:build !linux

package runtime

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// NativeBackend is a stub on non-Linux hosts: the in-process/containerd
// alternate backend is a Linux-only concern, per the design. Constructing
// one succeeds, but every operation on it returns a Runtime error rather
// than silently behaving like the VM backend.
type NativeBackend struct{}

// NewNativeBackend returns the stub; socketPath is ignored on non-Linux
// platforms.
func NewNativeBackend(socketPath string) *NativeBackend {
	return &NativeBackend{}
}

var _ Runtime = (*NativeBackend)(nil)

func (b *NativeBackend) unsupported() error {
	return shimerr.Runtime("the native backend is only available on linux")
}

func (b *NativeBackend) Create(ctx context.Context, cfg model.ContainerConfig) (string, error) {
	return "", b.unsupported()
}
func (b *NativeBackend) Start(ctx context.Context, id string) error { return b.unsupported() }
func (b *NativeBackend) Stop(ctx context.Context, id string) error  { return b.unsupported() }
func (b *NativeBackend) Delete(ctx context.Context, id string) error { return b.unsupported() }
func (b *NativeBackend) List(ctx context.Context) ([]model.ContainerRecord, error) {
	return nil, b.unsupported()
}
func (b *NativeBackend) Metrics(ctx context.Context, id string) (model.MetricsRecord, error) {
	return model.MetricsRecord{}, b.unsupported()
}
func (b *NativeBackend) AllMetrics(ctx context.Context) ([]model.MetricsRecord, error) {
	return nil, b.unsupported()
}
func (b *NativeBackend) Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error) {
	return model.LogsRecord{}, b.unsupported()
}
func (b *NativeBackend) Health(ctx context.Context, id string) (model.HealthRecord, error) {
	return model.HealthRecord{}, b.unsupported()
}
func (b *NativeBackend) Exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	return 0, "", "", b.unsupported()
}
