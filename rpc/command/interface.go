package command

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Command interfaces
// --------------------------------------------------------------------------

// ICommand is a self describing request/response unit. A command must not depend on
// the node it is executed against, it may be replayed against any node.
type ICommand[T any] interface {
	// IsReadRequest reports whether the command only reads. Reads may be balanced
	// across nodes and are served through the response cache.
	IsReadRequest() bool
	// Timeout returns the per attempt timeout, 0 uses the executor default
	Timeout() time.Duration
	// CreateRequest builds the request for the given node
	CreateRequest(node topology.Node) (*common.Request, error)
	// ParseResponse parses a successful response body. fromCache is set if the body was
	// served from the response cache. A nil body means the resource does not exist.
	ParseResponse(body []byte, fromCache bool) (T, error)
}

// IRaftCommand is implemented by writes that must be applied exactly once even if they
// are retried against different nodes. The id is sent in the Raft-Request-Id header.
type IRaftCommand interface {
	RaftUniqueRequestId() string
}

// INamedCommand can be implemented to give a command a readable name in error messages
type INamedCommand interface {
	Name() string
}

// NewRaftRequestId returns a new unique raft request id
func NewRaftRequestId() string {
	return uuid.NewString()
}

// RaftIdOf returns the raft request id of a command, if the command has one
func RaftIdOf(cmd any) (string, bool) {
	rc, ok := cmd.(IRaftCommand)
	if !ok {
		return "", false
	}
	id := rc.RaftUniqueRequestId()
	return id, id != ""
}

// NameOf returns the name of a command used in error messages
func NameOf(cmd any) string {
	if nc, ok := cmd.(INamedCommand); ok {
		return nc.Name()
	}
	t := reflect.TypeOf(cmd)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.TrimSuffix(t.Name(), "Command")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// requireBody returns a parse error for an empty body
func requireBody(body []byte, what string) error {
	if len(body) == 0 {
		return common.NewExecutionError(common.KindParseError, fmt.Sprintf("%s: response has no body", what), nil)
	}
	return nil
}

// parseError wraps a decoding error
func parseError(what string, err error) error {
	return common.NewExecutionError(common.KindParseError, fmt.Sprintf("%s: invalid response: %v", what, err), err)
}
