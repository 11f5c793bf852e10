package transport

import (
	"context"
	"net/http"

	"github.com/ValentinKolb/dClient/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler serving all incoming requests
	RegisterHandler(handler http.Handler)
	// Listen serves requests on the endpoint until the context is canceled
	Listen(ctx context.Context, endpoint string) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client transport used by the request executor
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send issues a single request and returns the fully read response. Non 2xx
	// responses are not errors, an error means the node could not be reached or the
	// context ended before the response was read.
	Send(ctx context.Context, req *common.Request) (*common.Response, error)
	// Close releases all idle connections
	Close() error
}
