package runtime

import (
	"context"
	"testing"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Runtime double used to exercise the derived
// operations (Shutdown, ForceDelete, CleanupStopped, ListOrphaned) without
// involving any transport.
type fakeBackend struct {
	records map[string]model.ContainerRecord
	stopErr error
}

func newFakeBackend(statuses map[string]model.ContainerStatus) *fakeBackend {
	records := make(map[string]model.ContainerRecord, len(statuses))
	for id, status := range statuses {
		records[id] = model.ContainerRecord{ID: id, Status: status}
	}
	return &fakeBackend{records: records}
}

func (f *fakeBackend) Create(ctx context.Context, cfg model.ContainerConfig) (string, error) {
	f.records[cfg.ID] = model.ContainerRecord{ID: cfg.ID, Status: model.StatusCreated}
	return cfg.ID, nil
}

func (f *fakeBackend) Start(ctx context.Context, id string) error {
	rec := f.records[id]
	rec.Status = model.StatusRunning
	f.records[id] = rec
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context, id string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	rec := f.records[id]
	rec.Status = model.StatusStopped
	f.records[id] = rec
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func (f *fakeBackend) List(ctx context.Context) ([]model.ContainerRecord, error) {
	out := make([]model.ContainerRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeBackend) Metrics(ctx context.Context, id string) (model.MetricsRecord, error) {
	return model.MetricsRecord{ID: id}, nil
}
func (f *fakeBackend) AllMetrics(ctx context.Context) ([]model.MetricsRecord, error) { return nil, nil }
func (f *fakeBackend) Logs(ctx context.Context, id string, opts model.LogOptions) (model.LogsRecord, error) {
	return model.LogsRecord{ID: id}, nil
}
func (f *fakeBackend) Health(ctx context.Context, id string) (model.HealthRecord, error) {
	return model.HealthRecord{ID: id}, nil
}
func (f *fakeBackend) Exec(ctx context.Context, id string, argv []string) (int32, string, string, error) {
	return 0, "", "", nil
}

var _ Runtime = (*fakeBackend)(nil)

func TestShutdownStopsOnlyRunningContainers(t *testing.T) {
	backend := newFakeBackend(map[string]model.ContainerStatus{
		"running1": model.StatusRunning,
		"created1": model.StatusCreated,
	})
	facade := NewFacade(backend, nil)

	require.NoError(t, facade.Shutdown(context.Background()))

	assert.Equal(t, model.StatusStopped, backend.records["running1"].Status)
	assert.Equal(t, model.StatusCreated, backend.records["created1"].Status)
}

func TestListOrphanedReturnsOnlyStopped(t *testing.T) {
	backend := newFakeBackend(map[string]model.ContainerStatus{
		"a": model.StatusStopped,
		"b": model.StatusRunning,
	})
	facade := NewFacade(backend, nil)

	orphaned, err := facade.ListOrphaned(context.Background())
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "a", orphaned[0].ID)
}

func TestCleanupStoppedDeletesStoppedOnly(t *testing.T) {
	backend := newFakeBackend(map[string]model.ContainerStatus{
		"a": model.StatusStopped,
		"b": model.StatusRunning,
	})
	facade := NewFacade(backend, nil)

	count, err := facade.CleanupStopped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, stillThere := backend.records["a"]
	assert.False(t, stillThere)
	_, stillRunning := backend.records["b"]
	assert.True(t, stillRunning)
}

func TestForceDeleteStopsThenDeletesRegardlessOfStopError(t *testing.T) {
	backend := newFakeBackend(map[string]model.ContainerStatus{
		"a": model.StatusRunning,
	})
	backend.stopErr = assertErr{}
	facade := NewFacade(backend, nil)

	err := facade.ForceDelete(context.Background(), "a")
	require.NoError(t, err)
	_, stillThere := backend.records["a"]
	assert.False(t, stillThere)
}

type assertErr struct{}

func (assertErr) Error() string { return "stop failed" }
