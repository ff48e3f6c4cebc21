package wire

import (
	"bytes"
	"testing"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		CreateRequest{Config: model.ContainerConfig{ID: "c1", Rootfs: "/rootfs", Argv: []string{"sh"}}},
		StartRequest{ID: "c1"},
		StopRequest{ID: "c1"},
		DeleteRequest{ID: "c1"},
		ListRequest{},
		MetricsRequest{ID: "c1"},
		AllMetricsRequest{},
		LogsRequest{ID: "c1", Options: model.LogOptions{Tail: 10, Timestamps: true}},
		HealthRequest{ID: "c1"},
		ExecRequest{ID: "c1", Argv: []string{"echo", "hi"}, Env: []string{"A=B"}},
	}

	for _, req := range reqs {
		encoded, err := EncodeRequest(req)
		require.NoError(t, err)

		decoded, err := DecodeRequest(encoded)
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resps := []Response{
		CreatedResponse{ID: "c1"},
		StartedResponse{},
		StoppedResponse{},
		DeletedResponse{},
		ListResponse{Containers: []model.ContainerRecord{{ID: "c1", Status: model.StatusRunning}}},
		MetricsResponse{Metrics: model.MetricsRecord{ID: "c1"}},
		AllMetricsResponse{Metrics: []model.MetricsRecord{{ID: "c1"}}},
		LogsResponse{Logs: model.LogsRecord{ID: "c1", Stdout: "hi"}},
		HealthResponse{Health: model.HealthRecord{ID: "c1", State: model.HealthHealthy}},
		ExecResponse{ExitCode: 0, Stdout: "ok"},
		ErrorResponse{Message: "boom"},
	}

	for _, resp := range resps {
		encoded, err := EncodeResponse(resp)
		require.NoError(t, err)

		decoded, err := DecodeResponse(encoded)
		require.NoError(t, err)
		assert.Equal(t, resp, decoded)
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	encoded, err := EncodeRequest(StartRequest{ID: "c1"})
	require.NoError(t, err)

	_, err = DecodeRequest(encoded[:len(encoded)-3])
	assert.Error(t, err)
}

func TestDecodeRejectsEmptyFrame(t *testing.T) {
	_, err := DecodeRequest(nil)
	assert.Error(t, err)
}

func TestIsExpectedResponseMatchesVariant(t *testing.T) {
	assert.True(t, IsExpectedResponse(StartRequest{ID: "c1"}, StartedResponse{}))
	assert.False(t, IsExpectedResponse(StartRequest{ID: "c1"}, StoppedResponse{}))
	assert.True(t, IsExpectedResponse(StartRequest{ID: "c1"}, ErrorResponse{Message: "nope"}))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello wire")
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, err := ReadFrame(truncated)
	assert.Error(t, err)
}
