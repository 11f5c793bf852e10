package executor

import (
	"sync"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Execution Context
// --------------------------------------------------------------------------

// ExecutionContext carries the per session hints of a caller. After a successful
// write the responding node becomes the preferred node for the following reads of
// the session (read-your-writes hinting, not a guarantee).
type ExecutionContext struct {
	SessionID string

	mu        sync.Mutex
	preferred string
}

// NewExecutionContext creates a context with a random session id
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{SessionID: uuid.NewString()}
}

// PreferredNode returns the key of the preferred node, empty if there is none
func (ec *ExecutionContext) PreferredNode() string {
	if ec == nil {
		return ""
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.preferred
}

// SetPreferredNode sets the key of the preferred node
func (ec *ExecutionContext) SetPreferredNode(key string) {
	if ec == nil {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.preferred = key
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type executeOptions struct {
	ec      *ExecutionContext
	noCache bool
}

// ExecuteOption configures a single execution
type ExecuteOption func(*executeOptions)

// WithExecutionContext attaches the session hints of the caller
func WithExecutionContext(ec *ExecutionContext) ExecuteOption {
	return func(o *executeOptions) {
		o.ec = ec
	}
}

// WithoutCache bypasses the response cache for this execution
func WithoutCache() ExecuteOption {
	return func(o *executeOptions) {
		o.noCache = true
	}
}

func applyOptions(opts []ExecuteOption) executeOptions {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
