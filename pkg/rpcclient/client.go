// Package rpcclient implements the one-request-one-response RPC call on
// top of pkg/transport and pkg/wire: open a stream, send, receive, lift
// any wire-level or remote Error into the shimerr taxonomy.
package rpcclient

import (
	"context"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/metrics"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/cuemby/libcrun-shim/pkg/transport"
	"github.com/cuemby/libcrun-shim/pkg/wire"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/cuemby/libcrun-shim/pkg/rpcclient")

// Client issues one RPC call at a time. It holds no persistent connection:
// Call opens a fresh transport stream per invocation, per the design's
// "one stream per call" contract, and never reuses a stream.
type Client struct {
	cfg    config.RuntimeConfig
	dialer transport.VsockDialer
}

// New returns a Client that dials cfg.SocketPath / cfg.VsockPort on every
// Call. dialer may be nil, in which case every call goes over the Unix
// socket.
func New(cfg config.RuntimeConfig, dialer transport.VsockDialer) *Client {
	return &Client{cfg: cfg, dialer: dialer}
}

// Call sends req and returns the decoded response, or a shimerr.Error
// describing a transport, protocol, or remote failure. A successful call
// whose response does not match the variant expected for req (and is not
// an Error response) is itself reported as a Runtime error.
func (c *Client) Call(ctx context.Context, req wire.Request) (wire.Response, error) {
	callID := uuid.NewString()
	logger := log.WithCall(callID)
	reqType := requestTypeName(req)

	ctx, span := tracer.Start(ctx, "vm.rpc.call",
		trace.WithAttributes(
			attribute.String("rpc.call_id", callID),
			attribute.String("rpc.request_type", reqType),
		),
	)
	defer span.End()

	timer := metrics.NewTimer()
	outcome := "success"
	defer func() {
		timer.ObserveDurationVec(metrics.RPCCallDuration, reqType)
		metrics.RPCCallsTotal.WithLabelValues(reqType, outcome).Inc()
	}()

	stream, err := transport.Dial(ctx, c.cfg, c.dialer)
	if err != nil {
		logger.Error().Err(err).Msg("rpc dial failed")
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}
	defer stream.Close()

	encoded, err := wire.EncodeRequest(req)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	if err := wire.WriteFrame(stream, encoded); err != nil {
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}

	frame, err := wire.ReadFrame(stream)
	if err != nil {
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}

	resp, err := wire.DecodeResponse(frame)
	if err != nil {
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}

	if errResp, ok := resp.(wire.ErrorResponse); ok {
		err := shimerr.Runtime("%s: %s", requestTypeName(req), errResp.Message)
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}

	if !wire.IsExpectedResponse(req, resp) {
		err := wire.UnexpectedResponseError(req, resp)
		span.RecordError(err)
		outcome = "error"
		return nil, err
	}

	return resp, nil
}

func requestTypeName(req wire.Request) string {
	switch req.(type) {
	case wire.CreateRequest:
		return "Create"
	case wire.StartRequest:
		return "Start"
	case wire.StopRequest:
		return "Stop"
	case wire.DeleteRequest:
		return "Delete"
	case wire.ListRequest:
		return "List"
	case wire.MetricsRequest:
		return "Metrics"
	case wire.AllMetricsRequest:
		return "AllMetrics"
	case wire.LogsRequest:
		return "Logs"
	case wire.HealthRequest:
		return "Health"
	case wire.ExecRequest:
		return "Exec"
	default:
		return "Unknown"
	}
}
