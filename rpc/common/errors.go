package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Error Kind Definition
// --------------------------------------------------------------------------

// ErrorKind is the stable, discriminable category of an execution failure.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota

	// Transient kinds, recovered by moving to the next node

	KindNetworkUnavailable // Network error or per attempt timeout
	KindNodeNotResponding  // 5xx or explicit "not responding" signal
	KindLeaderUnavailable  // The cluster has no leader (yet)

	// Fatal kinds, propagated immediately

	KindUnauthorized // 401
	KindForbidden    // 403
	KindBadRequest   // 400 and other 4xx
	KindConflict     // 409
	KindNotFound     // 404 on a write
	KindParseError   // Malformed response body

	// Terminal kinds, synthesized after exhausting the budget

	KindAllTopologyNodesDown // Every candidate failed
	KindTimeout              // Deadline or leader wait budget exceeded
	KindCanceled             // The caller canceled the execution
)

// String returns the stable name of an ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "NetworkUnavailable"
	case KindNodeNotResponding:
		return "NodeNotResponding"
	case KindLeaderUnavailable:
		return "LeaderUnavailable"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindBadRequest:
		return "BadRequest"
	case KindConflict:
		return "Conflict"
	case KindNotFound:
		return "NotFound"
	case KindParseError:
		return "ParseError"
	case KindAllTopologyNodesDown:
		return "AllTopologyNodesDownException"
	case KindTimeout:
		return "TimeoutException"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// ParseErrorKind converts the stable name back to an ErrorKind.
func ParseErrorKind(s string) ErrorKind {
	for k := KindNetworkUnavailable; k <= KindCanceled; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Transient reports whether the kind is recovered by trying another node.
func (k ErrorKind) Transient() bool {
	return k == KindNetworkUnavailable || k == KindNodeNotResponding || k == KindLeaderUnavailable
}

// Terminal reports whether the kind is only produced after exhausting the budget.
func (k ErrorKind) Terminal() bool {
	return k == KindAllTopologyNodesDown || k == KindTimeout || k == KindCanceled
}

// MarshalJSON implements the json.Marshaller interface for ErrorKind.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ErrorKind.
func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseErrorKind(s)
	if *k == KindUnknown && s != "Unknown" {
		return fmt.Errorf("unknown error kind: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Execution Error
// --------------------------------------------------------------------------

// NodeAttempt records the outcome of one attempt against one node.
type NodeAttempt struct {
	Node       string
	ClusterTag string
	Kind       ErrorKind
	Message    string
	Duration   time.Duration
	// Skipped is set for nodes that were not tried because they were backing off
	Skipped bool
}

// String returns a single line description of the attempt
func (a NodeAttempt) String() string {
	name := a.Node
	if a.ClusterTag != "" {
		name = fmt.Sprintf("%s (%s)", a.Node, a.ClusterTag)
	}
	if a.Skipped {
		return fmt.Sprintf("%s: skipped, %s", name, a.Message)
	}
	return fmt.Sprintf("%s: %s after %s: %s", name, a.Kind, FormatElapsed(a.Duration), a.Message)
}

// ExecutionError is the single error returned for a failed command execution.
type ExecutionError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Payload    []byte
	Node       string
	Attempts   []NodeAttempt
	Elapsed    time.Duration
	cause      error
}

// NewExecutionError creates a new error of the given kind
func NewExecutionError(kind ErrorKind, message string, cause error) *ExecutionError {
	return &ExecutionError{
		Kind:    kind,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Node != "" && !e.Kind.Terminal() {
		sb.WriteString(fmt.Sprintf(" (node %s", e.Node))
		if e.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf(", status %d", e.StatusCode))
		}
		sb.WriteString(")")
	}
	if len(e.Attempts) > 0 {
		sb.WriteString("\n")
		for _, a := range e.Attempts {
			sb.WriteString("  - ")
			sb.WriteString(a.String())
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Unwrap returns the underlying cause, if any
func (e *ExecutionError) Unwrap() error {
	return e.cause
}

// Is matches another ExecutionError by kind, which makes the sentinel values usable with errors.Is
func (e *ExecutionError) Is(target error) bool {
	var t *ExecutionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// NodesAttempted returns the number of attempts that actually reached the transport
func (e *ExecutionError) NodesAttempted() int {
	n := 0
	for _, a := range e.Attempts {
		if !a.Skipped {
			n++
		}
	}
	return n
}

// Sentinel errors, one per kind, for use with errors.Is
var (
	ErrNetworkUnavailable   = &ExecutionError{Kind: KindNetworkUnavailable}
	ErrNodeNotResponding    = &ExecutionError{Kind: KindNodeNotResponding}
	ErrLeaderUnavailable    = &ExecutionError{Kind: KindLeaderUnavailable}
	ErrUnauthorized         = &ExecutionError{Kind: KindUnauthorized}
	ErrForbidden            = &ExecutionError{Kind: KindForbidden}
	ErrBadRequest           = &ExecutionError{Kind: KindBadRequest}
	ErrConflict             = &ExecutionError{Kind: KindConflict}
	ErrNotFound             = &ExecutionError{Kind: KindNotFound}
	ErrParse                = &ExecutionError{Kind: KindParseError}
	ErrAllTopologyNodesDown = &ExecutionError{Kind: KindAllTopologyNodesDown}
	ErrTimeout              = &ExecutionError{Kind: KindTimeout}
	ErrCanceled             = &ExecutionError{Kind: KindCanceled}
)

// NoLeaderMessage ends the message of a leader wait timeout
const NoLeaderMessage = "there is no leader, and we timed out waiting for one"

// KindOf returns the kind of an error returned by the executor, KindUnknown otherwise.
func KindOf(err error) ErrorKind {
	var e *ExecutionError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// ClassifyResponse maps a non successful response to an error kind. The error body type
// wins over the status code, so nodes can signal LeaderUnavailable or NodeNotResponding
// with any status.
func ClassifyResponse(resp *Response) (ErrorKind, ErrorResponse) {
	var payload ErrorResponse
	if len(resp.Body) > 0 {
		_ = json.Unmarshal(resp.Body, &payload)
	}
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}

	switch ParseErrorKind(payload.Type) {
	case KindLeaderUnavailable:
		return KindLeaderUnavailable, payload
	case KindNodeNotResponding:
		return KindNodeNotResponding, payload
	}

	switch {
	case resp.StatusCode >= 500:
		return KindNodeNotResponding, payload
	case resp.StatusCode == http.StatusUnauthorized:
		return KindUnauthorized, payload
	case resp.StatusCode == http.StatusForbidden:
		return KindForbidden, payload
	case resp.StatusCode == http.StatusConflict:
		return KindConflict, payload
	case resp.StatusCode == http.StatusNotFound:
		return KindNotFound, payload
	default:
		return KindBadRequest, payload
	}
}

// FormatElapsed formats a duration as hh:mm:ss, with milliseconds for sub second values.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if d < time.Second {
		ms := d / time.Millisecond
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
