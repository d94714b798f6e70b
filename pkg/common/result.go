package common

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/cockroachdb/errors"
)

type resultKind int

const (
	resultWritten resultKind = iota
	resultBody
	resultFailure
)

// Result is what a handler or middleware returns. It is one of:
//
//   - Body: a structured mapping the router encodes and writes;
//   - Written: the handler already produced its own output, the router writes nothing;
//   - Fail: an error the router turns into an error response.
//
// The zero Result is Written.
type Result struct {
	kind resultKind
	data *codec.Map
	err  error
}

// Written reports that the handler wrote its own response.
func Written() Result {
	return Result{kind: resultWritten}
}

// Body returns a structured result. A nil mapping encodes as an empty object.
// An integer "status" entry overrides the default 200 response status.
func Body(m *codec.Map) Result {
	if m == nil {
		m = codec.NewMap()
	}
	return Result{kind: resultBody, data: m}
}

// JSON is shorthand for Body(codec.NewMap(kv...)).
func JSON(kv ...any) Result {
	return Body(codec.NewMap(kv...))
}

// Error returns a structured error payload {status, error}.
func Error(status int, reason string) Result {
	return JSON("status", status, "error", reason)
}

// Fail returns a failure result. An *HTTPError anywhere in err's chain decides the
// status and payload; any other error, or an *HTTPError whose StatusCode is not in
// 100-599, becomes a generic 500.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("failure without an error")
	}
	return Result{kind: resultFailure, err: err}
}

// IsWritten reports whether the handler wrote its own response.
func (r Result) IsWritten() bool {
	return r.kind == resultWritten
}

// Data returns the structured payload, or nil for written and failed results.
func (r Result) Data() *codec.Map {
	return r.data
}

// Err returns the failure, or nil.
func (r Result) Err() error {
	return r.err
}

// Status returns the status the router will send for this result. It is 0 for
// written results, whose status only the handler knows.
func (r Result) Status() int {
	switch r.kind {
	case resultBody:
		if v, ok := r.data.Get("status"); ok {
			if code, ok := StatusFromValue(v); ok {
				return code
			}
		}
		return http.StatusOK
	case resultFailure:
		var httpErr *HTTPError
		if errors.As(r.err, &httpErr) {
			if code, ok := StatusFromValue(httpErr.StatusCode); ok {
				return code
			}
		}
		return http.StatusInternalServerError
	default:
		return 0
	}
}

// StatusFromValue converts an integral value in the range 100-599 into a status code.
// Strings such as "ok" are not status codes and report false.
func StatusFromValue(v any) (int, bool) {
	var code int64
	switch n := v.(type) {
	case int:
		code = int64(n)
	case int32:
		code = int64(n)
	case int64:
		code = n
	case uint:
		code = int64(n)
	case uint32:
		code = int64(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		code = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		code = i
	default:
		return 0, false
	}

	if code < 100 || code > 599 {
		return 0, false
	}
	return int(code), true
}

// HTTPError represents an HTTP error with a status code, a machine-readable reason
// and a message for the client. Returning it through Fail lets a handler control the
// exact error response.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Reason     string // Machine-readable reason (e.g., "not_found")
	Message    string // Human-readable message sent in the response body
	Err        error  // Optional underlying cause, logged but never sent
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, reason, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Reason:     reason,
		Message:    message,
	}
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return http.StatusText(e.StatusCode) + ": " + e.Message + ": " + e.Err.Error()
	}
	return http.StatusText(e.StatusCode) + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Payload renders the error as the structured body sent to clients.
func (e *HTTPError) Payload() *codec.Map {
	m := codec.NewMap("status", e.StatusCode, "error", e.Reason)
	if e.Message != "" {
		m.Set("message", e.Message)
	}
	return m
}

// Response is the status, headers and encoded body the router writes for a result.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write copies the response onto w. Its headers replace headers of the same name
// already set on w; other headers set by middleware are kept.
func (r Response) Write(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		w.Header()[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(r.Status)
	_, err := w.Write(r.Body)
	return err
}
