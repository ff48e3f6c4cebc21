package runtime

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/rpcclient"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/cuemby/libcrun-shim/pkg/wire"
)

// VMBackend drives container operations through a single RPC round trip
// per call against the in-guest agent. It holds no local state: List,
// Metrics, and friends are answered entirely by the agent.
type VMBackend struct {
	client *rpcclient.Client
}

// NewVMBackend wraps client as a Runtime.
func NewVMBackend(client *rpcclient.Client) *VMBackend {
	return &VMBackend{client: client}
}

var _ Runtime = (*VMBackend)(nil)

func (b *VMBackend) Create(ctx context.Context, cfg model.ContainerConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	resp, err := b.client.Call(ctx, wire.CreateRequest{Config: cfg})
	if err != nil {
		return "", err
	}
	created, ok := resp.(wire.CreatedResponse)
	if !ok {
		return "", shimerr.Runtime("create: unexpected response %T", resp)
	}
	return created.ID, nil
}

func (b *VMBackend) Start(ctx context.Context, id string) error {
	resp, err := b.client.Call(ctx, wire.StartRequest{ID: id})
	if err != nil {
		return err
	}
	if _, ok := resp.(wire.StartedResponse); !ok {
		return shimerr.Runtime("start: unexpected response %T", resp)
	}
	return nil
}

func (b *VMBackend) Stop(ctx context.Context, id string) error {
	resp, err := b.client.Call(ctx, wire.StopRequest{ID: id})
	if err != nil {
		return err
	}
	if _, ok := resp.(wire.StoppedResponse); !ok {
		return shimerr.Runtime("stop: unexpected response %T", resp)
	}
	return nil
}

func (b *VMBackend) Delete(ctx context.Context, id string) error {
	resp, err := b.client.Call(ctx, wire.DeleteRequest{ID: id})
	if err != nil {
		return err
	}
	if _, ok := resp.(wire.DeletedResponse); !ok {
		return shimerr.Runtime("delete: unexpected response %T", resp)
	}
	return nil
}

func (b *VMBackend) List(ctx context.Context) ([]model.ContainerRecord, error) {
	resp, err := b.client.Call(ctx, wire.ListRequest{})
	if err != nil {
		return nil, err
	}
	list, ok := resp.(wire.ListResponse)
	if !ok {
		return nil, shimerr.Runtime("list: unexpected response %T", resp)
	}
	return list.Containers, nil
}

func (b *VMBackend) Metrics(ctx context.Context, id string) (model.MetricsRecord, error) {
	resp, err := b.client.Call(ctx, wire.MetricsRequest{ID: id})
	if err != nil {
		return model.MetricsRecord{}, err
	}
	m, ok := resp.(wire.MetricsResponse)
	if !ok {
		return model.MetricsRecord{}, shimerr.Runtime("metrics: unexpected response %T", resp)
	}
	return m.Metrics, nil
}

func (b *VMBackend) AllMetrics(ctx context.Context) ([]model.MetricsRecord, error) {
	resp, err := b.client.Call(ctx, wire.AllMetricsRequest{})
	if err != nil {
		return nil, err
	}
	all, ok := resp.(wire.AllMetricsResponse)
	if !ok {
		return nil, shimerr.Runtime("all_metrics: unexpected response %T", resp)
	}
	return all.Metrics, nil
}

func (b *VMBackend) Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error) {
	resp, err := b.client.Call(ctx, wire.LogsRequest{ID: id, Options: opts})
	if err != nil {
		return model.LogsRecord{}, err
	}
	logs, ok := resp.(wire.LogsResponse)
	if !ok {
		return model.LogsRecord{}, shimerr.Runtime("logs: unexpected response %T", resp)
	}
	return logs.Logs, nil
}

func (b *VMBackend) Health(ctx context.Context, id string) (model.HealthRecord, error) {
	resp, err := b.client.Call(ctx, wire.HealthRequest{ID: id})
	if err != nil {
		return model.HealthRecord{}, err
	}
	h, ok := resp.(wire.HealthResponse)
	if !ok {
		return model.HealthRecord{}, shimerr.Runtime("health: unexpected response %T", resp)
	}
	return h.Health, nil
}

func (b *VMBackend) Exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	resp, err := b.client.Call(ctx, wire.ExecRequest{ID: id, Argv: argv})
	if err != nil {
		return 0, "", "", err
	}
	e, ok := resp.(wire.ExecResponse)
	if !ok {
		return 0, "", "", shimerr.Runtime("exec: unexpected response %T", resp)
	}
	return e.ExitCode, e.Stdout, e.Stderr, nil
}
