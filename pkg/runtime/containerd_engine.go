//go:build linux

package runtime

import (
	"context"
	"io"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// defaultNamespace is the containerd namespace this shim operates under,
// kept separate from a host's other containerd clients (Docker, k3s, ...).
const defaultNamespace = "libcrun-shim"

// containerdEngine delegates the state-mutating operations of
// NativeBackend to a real containerd daemon when one is reachable,
// building an OCI runtime spec from a model.ContainerConfig the same way
// the agent side of the VM backend would.
type containerdEngine struct {
	client *containerd.Client
}

func newContainerdEngine(socketPath string) (*containerdEngine, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, shimerr.RuntimeWithCause(err, "connect to containerd at %s", socketPath)
	}
	return &containerdEngine{client: client}, nil
}

func (e *containerdEngine) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, defaultNamespace)
}

func (e *containerdEngine) create(ctx context.Context, cfg model.ContainerConfig) error {
	ctx = e.ctx(ctx)

	opts := []oci.SpecOpts{
		oci.WithProcessArgs(cfg.Argv...),
		oci.WithEnv(cfg.Env),
		oci.WithRootFSPath(cfg.Rootfs),
	}
	if cfg.WorkingDir != "" {
		opts = append(opts, oci.WithProcessCwd(cfg.WorkingDir))
	}
	if cfg.Resources.Memory != nil {
		opts = append(opts, oci.WithMemoryLimit(uint64(*cfg.Resources.Memory)))
	}
	if cfg.Resources.CPU != nil {
		shares := uint64(*cfg.Resources.CPU * 1024)
		quota := int64(*cfg.Resources.CPU * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}

	_, err := e.client.NewContainer(ctx, cfg.ID,
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return shimerr.RuntimeWithCause(err, "containerd create container %s", cfg.ID)
	}
	return nil
}

func (e *containerdEngine) start(ctx context.Context, id string) (int, error) {
	ctx = e.ctx(ctx)

	container, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, shimerr.RuntimeWithCause(err, "load container %s", id)
	}
	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return 0, shimerr.RuntimeWithCause(err, "create task for %s", id)
	}
	if err := task.Start(ctx); err != nil {
		return 0, shimerr.RuntimeWithCause(err, "start task for %s", id)
	}
	return int(task.Pid()), nil
}

func (e *containerdEngine) stop(ctx context.Context, id string, timeout time.Duration) error {
	ctx = e.ctx(ctx)

	container, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return shimerr.RuntimeWithCause(err, "load container %s", id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task: nothing to stop
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return shimerr.RuntimeWithCause(err, "signal task for %s", id)
	}
	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return shimerr.RuntimeWithCause(err, "wait for task %s", id)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return shimerr.RuntimeWithCause(err, "force kill task for %s", id)
		}
	}
	if _, err := task.Delete(ctx); err != nil {
		return shimerr.RuntimeWithCause(err, "delete task for %s", id)
	}
	return nil
}

func (e *containerdEngine) delete(ctx context.Context, id string) error {
	ctx = e.ctx(ctx)

	container, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return nil // already gone
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return shimerr.RuntimeWithCause(err, "delete container %s", id)
	}
	return nil
}

func (e *containerdEngine) exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	ctx = e.ctx(ctx)

	container, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "load container %s", id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "load task for %s", id)
	}

	spec, err := container.Spec(ctx)
	if err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "load spec for %s", id)
	}
	procSpec := spec.Process
	procSpec.Args = argv

	process, err := task.Exec(ctx, id+"-exec", procSpec, cio.NullIO)
	if err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "exec in container %s", id)
	}
	if err := process.Start(ctx); err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "start exec process in %s", id)
	}

	statusC, err := process.Wait(ctx)
	if err != nil {
		return 0, "", "", shimerr.RuntimeWithCause(err, "wait for exec process in %s", id)
	}
	status := <-statusC
	_, _ = process.Delete(ctx)

	return int32(status.ExitCode()), "", "", nil
}

var _ io.Closer = (*containerdEngine)(nil)

func (e *containerdEngine) Close() error {
	return e.client.Close()
}
