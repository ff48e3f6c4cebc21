// Package wire implements the closed request/response protocol exchanged
// with the in-guest agent: a tagged union, a canonical binary encoding, and
// the length-prefixed framing used to read/write one message at a time.
//
// Decoding rejects unknown tags and truncated frames instead of returning
// a zero-value message, so a corrupt stream always surfaces as an error
// rather than silently producing garbage.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
)

// Request is implemented by every request variant. The set is closed: no
// code outside this package may add a variant.
type Request interface {
	requestTag() tag
}

// Response is implemented by every response variant, Error included.
type Response interface {
	responseTag() tag
}

type tag byte

const (
	tagCreate tag = iota + 1
	tagStart
	tagStop
	tagDelete
	tagList
	tagMetrics
	tagAllMetrics
	tagLogs
	tagHealth
	tagExec

	tagCreated
	tagStarted
	tagStopped
	tagDeleted
	tagListResp
	tagMetricsResp
	tagAllMetricsResp
	tagLogsResp
	tagHealthResp
	tagExecResp
	tagError
)

// Request variants.

type CreateRequest struct{ Config model.ContainerConfig }
type StartRequest struct{ ID string }
type StopRequest struct{ ID string }
type DeleteRequest struct{ ID string }
type ListRequest struct{}
type MetricsRequest struct{ ID string }
type AllMetricsRequest struct{}
type LogsRequest struct {
	ID      string
	Options model.LogOptions
}
type HealthRequest struct{ ID string }
type ExecRequest struct {
	ID      string
	Argv    []string
	Env     []string
	WorkDir *string
}

func (CreateRequest) requestTag() tag     { return tagCreate }
func (StartRequest) requestTag() tag      { return tagStart }
func (StopRequest) requestTag() tag       { return tagStop }
func (DeleteRequest) requestTag() tag     { return tagDelete }
func (ListRequest) requestTag() tag       { return tagList }
func (MetricsRequest) requestTag() tag    { return tagMetrics }
func (AllMetricsRequest) requestTag() tag { return tagAllMetrics }
func (LogsRequest) requestTag() tag       { return tagLogs }
func (HealthRequest) requestTag() tag     { return tagHealth }
func (ExecRequest) requestTag() tag       { return tagExec }

// Response variants.

type CreatedResponse struct{ ID string }
type StartedResponse struct{}
type StoppedResponse struct{}
type DeletedResponse struct{}
type ListResponse struct{ Containers []model.ContainerRecord }
type MetricsResponse struct{ Metrics model.MetricsRecord }
type AllMetricsResponse struct{ Metrics []model.MetricsRecord }
type LogsResponse struct{ Logs model.LogsRecord }
type HealthResponse struct{ Health model.HealthRecord }
type ExecResponse struct {
	ExitCode int32
	Stdout   string
	Stderr   string
}
type ErrorResponse struct{ Message string }

func (CreatedResponse) responseTag() tag     { return tagCreated }
func (StartedResponse) responseTag() tag     { return tagStarted }
func (StoppedResponse) responseTag() tag     { return tagStopped }
func (DeletedResponse) responseTag() tag     { return tagDeleted }
func (ListResponse) responseTag() tag        { return tagListResp }
func (MetricsResponse) responseTag() tag     { return tagMetricsResp }
func (AllMetricsResponse) responseTag() tag  { return tagAllMetricsResp }
func (LogsResponse) responseTag() tag        { return tagLogsResp }
func (HealthResponse) responseTag() tag      { return tagHealthResp }
func (ExecResponse) responseTag() tag        { return tagExecResp }
func (ErrorResponse) responseTag() tag       { return tagError }

func init() {
	for _, v := range []any{
		CreateRequest{}, StartRequest{}, StopRequest{}, DeleteRequest{}, ListRequest{},
		MetricsRequest{}, AllMetricsRequest{}, LogsRequest{}, HealthRequest{}, ExecRequest{},
		CreatedResponse{}, StartedResponse{}, StoppedResponse{}, DeletedResponse{}, ListResponse{},
		MetricsResponse{}, AllMetricsResponse{}, LogsResponse{}, HealthResponse{}, ExecResponse{},
		ErrorResponse{},
	} {
		gob.Register(v)
	}
}

// EncodeRequest renders req in the canonical binary form: a one-byte tag
// followed by the gob encoding of the variant's payload struct.
func EncodeRequest(req Request) ([]byte, error) {
	return encode(req.requestTag(), req)
}

// EncodeResponse renders resp in the canonical binary form.
func EncodeResponse(resp Response) ([]byte, error) {
	return encode(resp.responseTag(), resp)
}

func encode(t tag, payload any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(t))
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&payload); err != nil {
		return nil, shimerr.Serialization("encode payload: %v", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest parses data produced by EncodeRequest. Unknown tags or a
// gob payload that fails to decode are reported as Serialization errors.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) < 1 {
		return nil, shimerr.Serialization("empty request frame")
	}
	t := tag(data[0])
	var payload any
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&payload); err != nil {
		return nil, shimerr.Serialization("decode request payload: %v", err)
	}
	req, ok := payload.(Request)
	if !ok {
		return nil, shimerr.Serialization("unknown request tag %d", t)
	}
	if req.requestTag() != t {
		return nil, shimerr.Serialization("request tag %d does not match payload type", t)
	}
	return req, nil
}

// DecodeResponse parses data produced by EncodeResponse.
func DecodeResponse(data []byte) (Response, error) {
	if len(data) < 1 {
		return nil, shimerr.Serialization("empty response frame")
	}
	t := tag(data[0])
	var payload any
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&payload); err != nil {
		return nil, shimerr.Serialization("decode response payload: %v", err)
	}
	resp, ok := payload.(Response)
	if !ok {
		return nil, shimerr.Serialization("unknown response tag %d", t)
	}
	if resp.responseTag() != t {
		return nil, shimerr.Serialization("response tag %d does not match payload type", t)
	}
	return resp, nil
}

// maxFrameSize bounds a single frame to guard against a corrupt length
// prefix causing an unbounded allocation.
const maxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes a single length-prefixed message: a 4-byte big-endian
// length followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return shimerr.Io(err, "write frame length")
	}
	if _, err := w.Write(payload); err != nil {
		return shimerr.Io(err, "write frame payload")
	}
	return nil
}

// ReadFrame reads a single length-prefixed message written by WriteFrame.
// A stream that ends before the declared length is fully read is reported
// as a Serialization error (a truncated frame), not a bare io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, shimerr.Io(err, "connection closed before frame")
		}
		return nil, shimerr.Serialization("truncated frame length: %v", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, shimerr.Serialization("frame length %d exceeds maximum %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, shimerr.Serialization("truncated frame payload: %v", err)
	}
	return payload, nil
}

// ExpectedResponseTag returns the response tag() the given request expects
// on success, used by the RPC client to detect a mismatched variant.
func ExpectedResponseTag(req Request) tag {
	switch req.(type) {
	case CreateRequest:
		return tagCreated
	case StartRequest:
		return tagStarted
	case StopRequest:
		return tagStopped
	case DeleteRequest:
		return tagDeleted
	case ListRequest:
		return tagListResp
	case MetricsRequest:
		return tagMetricsResp
	case AllMetricsRequest:
		return tagAllMetricsResp
	case LogsRequest:
		return tagLogsResp
	case HealthRequest:
		return tagHealthResp
	case ExecRequest:
		return tagExecResp
	default:
		return 0
	}
}

// IsExpectedResponse reports whether resp is the success variant expected
// for req, or an Error response (which callers handle separately).
func IsExpectedResponse(req Request, resp Response) bool {
	if _, ok := resp.(ErrorResponse); ok {
		return true
	}
	return resp.responseTag() == ExpectedResponseTag(req)
}

// UnexpectedResponseError builds the "unexpected response" error described
// in the RPC client's contract.
func UnexpectedResponseError(req Request, resp Response) error {
	return shimerr.Runtime("unexpected response variant %T for request %T", resp, req)
}
