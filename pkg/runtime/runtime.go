// Package runtime is the facade every caller (CLI, future shim-v2 server)
// goes through: a single Runtime interface with two back-ends behind it,
// chosen once at construction rather than switched on at call time, plus
// the handful of derived operations (shutdown, force-delete, cleanup,
// orphan listing) built purely out of the core ten.
package runtime

import (
	"context"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/eventbus"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/metrics"
	"github.com/cuemby/libcrun-shim/pkg/model"
)

// Runtime is implemented by every back-end: the VM-RPC backend (macOS, and
// any host reaching an already-running guest agent) and the native
// in-process backend (Linux, optionally delegating to containerd).
type Runtime interface {
	Create(ctx context.Context, cfg model.ContainerConfig) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.ContainerRecord, error)
	Metrics(ctx context.Context, id string) (model.MetricsRecord, error)
	AllMetrics(ctx context.Context) ([]model.MetricsRecord, error)
	Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error)
	Health(ctx context.Context, id string) (model.HealthRecord, error)
	Exec(ctx context.Context, id string, argv []string) (exitCode int32, stdout, stderr string, err error)
}

// forceDeleteSettle is the fixed pause between a best-effort Stop and the
// subsequent unconditional Delete in ForceDelete, matching the settle time
// used upstream; there is no signal to wait on instead, since Stop's
// completion does not guarantee the agent has released every resource.
const forceDeleteSettle = time.Second

// Facade wraps a Runtime back-end, publishing a lifecycle event to bus after
// each successful Create, Start, Stop, Delete, and Exec (the read-only
// operations publish nothing), and layering the derived operations on top
// of the ten core ones.
type Facade struct {
	inner Runtime
	bus   *eventbus.Bus
}

// NewFacade wraps inner, publishing events to bus. bus may be nil, in which
// case events are silently dropped.
func NewFacade(inner Runtime, bus *eventbus.Bus) *Facade {
	return &Facade{inner: inner, bus: bus}
}

func (f *Facade) emit(id string, fn func(*eventbus.Bus)) {
	if f.bus == nil {
		return
	}
	fn(f.bus)
}

func (f *Facade) Create(ctx context.Context, cfg model.ContainerConfig) (string, error) {
	timer := metrics.NewTimer()
	id, err := f.inner.Create(ctx, cfg)
	timer.ObserveDuration(metrics.ContainerCreateDuration)
	if err == nil {
		f.emit(id, func(b *eventbus.Bus) { b.EmitCreate(id) })
	}
	return id, err
}

func (f *Facade) Start(ctx context.Context, id string) error {
	timer := metrics.NewTimer()
	err := f.inner.Start(ctx, id)
	timer.ObserveDuration(metrics.ContainerStartDuration)
	if err == nil {
		f.emit(id, func(b *eventbus.Bus) { b.EmitStart(id) })
	}
	return err
}

func (f *Facade) Stop(ctx context.Context, id string) error {
	timer := metrics.NewTimer()
	err := f.inner.Stop(ctx, id)
	timer.ObserveDuration(metrics.ContainerStopDuration)
	if err == nil {
		f.emit(id, func(b *eventbus.Bus) { b.EmitStop(id) })
	}
	return err
}

func (f *Facade) Delete(ctx context.Context, id string) error {
	err := f.inner.Delete(ctx, id)
	if err == nil {
		f.emit(id, func(b *eventbus.Bus) { b.EmitDelete(id) })
	}
	return err
}

func (f *Facade) List(ctx context.Context) ([]model.ContainerRecord, error) {
	containers, err := f.inner.List(ctx)
	if err == nil {
		reportContainersTotal(containers)
	}
	return containers, err
}

// reportContainersTotal refreshes the containers-by-status gauge from a
// fresh List snapshot; List is the only operation that sees every
// container at once, so it is the natural place to keep the gauge honest
// rather than incrementing/decrementing it per lifecycle transition.
func reportContainersTotal(containers []model.ContainerRecord) {
	counts := map[model.ContainerStatus]int{
		model.StatusCreated: 0,
		model.StatusRunning: 0,
		model.StatusStopped: 0,
	}
	for _, c := range containers {
		counts[c.Status]++
	}
	for status, count := range counts {
		metrics.ContainersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (f *Facade) Metrics(ctx context.Context, id string) (model.MetricsRecord, error) {
	return f.inner.Metrics(ctx, id)
}

func (f *Facade) AllMetrics(ctx context.Context) ([]model.MetricsRecord, error) {
	return f.inner.AllMetrics(ctx)
}

func (f *Facade) Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error) {
	return f.inner.Logs(ctx, id, opts)
}

func (f *Facade) Health(ctx context.Context, id string) (model.HealthRecord, error) {
	return f.inner.Health(ctx, id)
}

func (f *Facade) Exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	exitCode, stdout, stderr, err := f.inner.Exec(ctx, id, argv)
	if err == nil {
		f.emit(id, func(b *eventbus.Bus) { b.EmitExecDie(id) })
	}
	return exitCode, stdout, stderr, err
}

// Shutdown stops every currently running container, logging (but not
// failing on) any individual stop error, mirroring the "best effort,
// continue regardless" shutdown contract.
func (f *Facade) Shutdown(ctx context.Context) error {
	logger := log.WithComponent("runtime")
	logger.Info().Msg("initiating graceful shutdown of all containers")

	containers, err := f.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range containers {
		if c.Status != model.StatusRunning {
			continue
		}
		logger.Info().Str("container", c.ID).Msg("stopping container during shutdown")
		if err := f.Stop(ctx, c.ID); err != nil {
			logger.Warn().Err(err).Str("container", c.ID).Msg("failed to stop container during shutdown")
		}
	}
	logger.Info().Msg("graceful shutdown complete")
	return nil
}

// ListOrphaned returns containers left in the Stopped state, a proxy for
// "crashed or not properly cleaned up" since the facade has no separate
// crash signal.
func (f *Facade) ListOrphaned(ctx context.Context) ([]model.ContainerRecord, error) {
	containers, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	orphaned := make([]model.ContainerRecord, 0, len(containers))
	for _, c := range containers {
		if c.Status == model.StatusStopped {
			orphaned = append(orphaned, c)
		}
	}
	return orphaned, nil
}

// ForceDelete stops id (ignoring any error, since it may already be
// stopped or gone), waits out forceDeleteSettle, then deletes it
// unconditionally.
func (f *Facade) ForceDelete(ctx context.Context, id string) error {
	_ = f.Stop(ctx, id)

	timer := time.NewTimer(forceDeleteSettle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	return f.Delete(ctx, id)
}

// CleanupStopped deletes every container currently in the Stopped state
// and returns how many were successfully removed.
func (f *Facade) CleanupStopped(ctx context.Context) (int, error) {
	containers, err := f.List(ctx)
	if err != nil {
		return 0, err
	}
	cleaned := 0
	logger := log.WithComponent("runtime")
	for _, c := range containers {
		if c.Status != model.StatusStopped {
			continue
		}
		logger.Info().Str("container", c.ID).Msg("cleaning up stopped container")
		if err := f.Delete(ctx, c.ID); err == nil {
			cleaned++
		}
	}
	return cleaned, nil
}
