package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/drblury/reqflow/internal/runtime/jsoncodec"
)

// RequestEnvelope is the transport-neutral request value carried through the
// core. The ingress adapter creates it once; afterwards it is never mutated,
// only copied with additions.
type RequestEnvelope struct {
	ID         string
	Method     string
	Target     string
	Header     map[string]string
	RemoteAddr string
	StartTime  time.Time
	Body       []byte
}

// WithBody returns a copy of the envelope carrying the supplied body.
func (e RequestEnvelope) WithBody(body []byte) RequestEnvelope {
	e.Body = body
	return e
}

// WithID returns a copy of the envelope carrying the supplied request ID.
func (e RequestEnvelope) WithID(id string) RequestEnvelope {
	e.ID = id
	return e
}

// HeaderValue performs a case-insensitive single-value header lookup.
func (e RequestEnvelope) HeaderValue(name string) string {
	if v, ok := e.Header[name]; ok {
		return v
	}
	for k, v := range e.Header {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Response is the transport-neutral result of handling a request. Middleware
// layers return new values derived from the downstream one rather than
// mutating in place.
type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

// WithHeader returns a copy of the response with one header added. The
// original header map is cloned so shared responses stay immutable.
func (r Response) WithHeader(name, value string) Response {
	header := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		header[k] = v
	}
	header[name] = value
	r.Header = header
	return r
}

// Size reports the response body length in bytes.
func (r Response) Size() int {
	return len(r.Body)
}

// TextResponse builds a plain-text response.
func TextResponse(status int, body string) Response {
	return Response{
		StatusCode: status,
		Header:     map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       []byte(body),
	}
}

// JSONResponse builds an application/json response from any marshalable value.
func JSONResponse(status int, v any) Response {
	return Response{
		StatusCode: status,
		Header:     map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       jsoncodec.MustMarshal(v),
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse builds the structured error object every error path in the
// core produces. The message is caller-facing; internal detail never leaks
// through it.
func ErrorResponse(status int, message, requestID string) Response {
	return JSONResponse(status, errorBody{Error: errorDetail{
		Status:    status,
		Message:   message,
		RequestID: requestID,
	}})
}

// Status codes produced by the core. The values follow HTTP semantics so
// ingress adapters can pass them through unchanged, but the core never
// depends on an HTTP stack.
const (
	StatusOK              = 200
	StatusBadRequest      = 400
	StatusNotFound        = 404
	StatusPayloadTooLarge = 413
	StatusTooManyRequests = 429
	StatusInternalError   = 500
	StatusUnavailable     = 503
	StatusGatewayTimeout  = 504
)

// RuntimeState is the lifecycle state of the runtime. Exactly one instance
// exists per runtime, owned by the StateManager.
type RuntimeState int

const (
	StateStarting RuntimeState = iota
	StateReady
	StateDegraded
	StateDraining
	StateStopping
)

func (s RuntimeState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateDraining:
		return "draining"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StateTransition records one accepted lifecycle transition.
type StateTransition struct {
	From RuntimeState `json:"from"`
	To   RuntimeState `json:"to"`
	At   time.Time    `json:"at"`
}

// RequestTiming is one completed request's contribution to the telemetry ring.
type RequestTiming struct {
	DurationMs    float64
	ResponseBytes int
}

// TelemetrySnapshot is an immutable point-in-time aggregate of runtime
// metrics. Snapshots are replaced wholesale behind an atomic pointer; readers
// never observe a partially built value.
type TelemetrySnapshot struct {
	TotalRequests    uint64    `json:"total_requests"`
	ActiveRequests   int64     `json:"active_requests"`
	P50Ms            float64   `json:"p50_ms"`
	P95Ms            float64   `json:"p95_ms"`
	P99Ms            float64   `json:"p99_ms"`
	MemoryMB         float64   `json:"memory_mb"`
	CPUPercent       float64   `json:"cpu_percent"`
	SchedulerLagMs   float64   `json:"scheduler_lag_ms"`
	AvgResponseBytes float64   `json:"avg_response_bytes"`
	TakenAt          time.Time `json:"taken_at"`
}

// RouteMatch is the result of resolving a request against the router.
type RouteMatch struct {
	HandlerName string
	Params      map[string]string
}

// DrainResult reports how a graceful shutdown ended.
type DrainResult struct {
	// Drained is true when the active-request count reached zero before the
	// timeout.
	Drained bool
	// NoOp is true when shutdown was already in progress and this call did
	// nothing.
	NoOp bool
	// Forced is true when the drain timed out with requests still running.
	Forced bool
	// Remaining is the active-request count at the forced cutoff.
	Remaining int64
	// Elapsed is how long the drain phase ran.
	Elapsed time.Duration
}
