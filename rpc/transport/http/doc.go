// Package http implements the HTTP transport layer between the request executor and the
// cluster nodes. It provides concrete implementations of the transport interfaces defined
// in the parent package.
//
// The package focuses on:
//   - Client-side HTTP transport sending single requests with per request contexts
//   - Connection pooling and optional mutual TLS (client certificate and custom CA)
//   - Server-side HTTP listener with graceful shutdown and a debug logging middleware
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It never retries and never
//     interprets status codes, both are decided by the request executor. Canceling the
//     request context aborts the in-flight call and closes its connection.
//
//   - httpServerTransport: Implements IRPCServerTransport, serving a registered
//     http.Handler on an endpoint until its context is canceled.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently after Connect.
package http
