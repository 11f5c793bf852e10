// Package transport defines the interfaces of the transport layer between the request
// executor and the cluster nodes.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Keeping the executor independent of connection handling (pooling, TLS)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and sends single requests to a node.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receive requests and hand them to a registered handler.
package transport
