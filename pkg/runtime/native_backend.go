//go:build linux

package runtime

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// containerState is the in-process record for a container managed by
// NativeBackend: the configuration it was created with plus its current
// lifecycle state.
type containerState struct {
	config model.ContainerConfig
	record model.ContainerRecord
}

// NativeBackend is the Linux-native alternate to VMBackend: container
// state lives in an in-process map guarded by a single RWMutex rather than
// behind an RPC call, and Start/Stop optionally delegate to a real
// containerd engine when one is reachable.
type NativeBackend struct {
	mu         sync.RWMutex
	containers map[string]*containerState
	engine     *containerdEngine // nil when containerd.sock is unreachable
}

// NewNativeBackend constructs an empty backend, probing for a reachable
// containerd socket at socketPath. A failed probe is not an error: the
// backend falls back to tracking state in memory only, the same
// "best effort, degrade gracefully" posture the VM side uses for its own
// bridge.
func NewNativeBackend(socketPath string) *NativeBackend {
	b := &NativeBackend{containers: make(map[string]*containerState)}

	engine, err := newContainerdEngine(socketPath)
	if err != nil {
		log.WithComponent("native-backend").Warn().Err(err).
			Msg("containerd unreachable, tracking container state in-process only")
		return b
	}
	b.engine = engine
	return b
}

var _ Runtime = (*NativeBackend)(nil)

func (b *NativeBackend) Create(ctx context.Context, cfg model.ContainerConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if info, err := os.Stat(cfg.Rootfs); err != nil || !info.IsDir() {
		return "", shimerr.Runtime("rootfs does not exist: %s", cfg.Rootfs)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.containers[cfg.ID]; exists {
		return "", shimerr.Runtime("container %q already exists", cfg.ID)
	}

	if b.engine != nil {
		if err := b.engine.create(ctx, cfg); err != nil {
			return "", err
		}
	}

	b.containers[cfg.ID] = &containerState{
		config: cfg,
		record: model.ContainerRecord{ID: cfg.ID, Status: model.StatusCreated},
	}
	return cfg.ID, nil
}

func (b *NativeBackend) Start(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.containers[id]
	if !ok {
		return shimerr.NotFound(id)
	}
	switch state.record.Status {
	case model.StatusRunning:
		return shimerr.Runtime("container %q is already running", id)
	case model.StatusStopped:
		return shimerr.Runtime("container %q is stopped and cannot be restarted (delete and recreate)", id)
	}

	if b.engine != nil {
		pid, err := b.engine.start(ctx, id)
		if err != nil {
			return err
		}
		state.record.Pid = &pid
	} else {
		pid := os.Getpid()
		state.record.Pid = &pid
	}
	state.record.Status = model.StatusRunning
	return nil
}

func (b *NativeBackend) Stop(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.containers[id]
	if !ok {
		return shimerr.NotFound(id)
	}
	if state.record.Status != model.StatusRunning {
		return shimerr.Runtime("container %q is not running (status: %s)", id, state.record.Status)
	}

	if b.engine != nil {
		if err := b.engine.stop(ctx, id, 10*time.Second); err != nil {
			return err
		}
	}
	state.record.Status = model.StatusStopped
	state.record.Pid = nil
	return nil
}

func (b *NativeBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.containers[id]
	if !ok {
		return shimerr.NotFound(id)
	}
	if state.record.Status == model.StatusRunning {
		return shimerr.Runtime("cannot delete running container %q, stop it first", id)
	}

	if b.engine != nil {
		if err := b.engine.delete(ctx, id); err != nil {
			return err
		}
	}
	delete(b.containers, id)
	return nil
}

func (b *NativeBackend) List(ctx context.Context) ([]model.ContainerRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	records := make([]model.ContainerRecord, 0, len(b.containers))
	for _, state := range b.containers {
		records = append(records, state.record)
	}
	return records, nil
}

func (b *NativeBackend) Metrics(ctx context.Context, id string) (model.MetricsRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.containers[id]; !ok {
		return model.MetricsRecord{}, shimerr.NotFound(id)
	}
	return model.MetricsRecord{ID: id, Timestamp: time.Now().Unix()}, nil
}

func (b *NativeBackend) AllMetrics(ctx context.Context) ([]model.MetricsRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.MetricsRecord, 0, len(b.containers))
	now := time.Now().Unix()
	for id := range b.containers {
		out = append(out, model.MetricsRecord{ID: id, Timestamp: now})
	}
	return out, nil
}

func (b *NativeBackend) Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.containers[id]; !ok {
		return model.LogsRecord{}, shimerr.NotFound(id)
	}
	return model.LogsRecord{ID: id, Timestamp: time.Now().Unix()}, nil
}

func (b *NativeBackend) Health(ctx context.Context, id string) (model.HealthRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state, ok := b.containers[id]
	if !ok {
		return model.HealthRecord{}, shimerr.NotFound(id)
	}
	health := model.HealthNone
	if state.record.Status == model.StatusRunning {
		health = model.HealthHealthy
	}
	return model.HealthRecord{ID: id, State: health, LastCheck: time.Now().Unix()}, nil
}

func (b *NativeBackend) Exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	b.mu.RLock()
	state, ok := b.containers[id]
	b.mu.RUnlock()
	if !ok {
		return 0, "", "", shimerr.NotFound(id)
	}
	if state.record.Status != model.StatusRunning {
		return 0, "", "", shimerr.Runtime("container %q is not running", id)
	}
	if len(argv) == 0 {
		return 0, "", "", shimerr.Validation("argv", "must not be empty")
	}
	if b.engine != nil {
		return b.engine.exec(ctx, id, argv)
	}
	return 0, "", "", shimerr.Runtime("exec requires a reachable containerd engine")
}
