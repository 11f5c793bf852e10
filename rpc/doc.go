// Package rpc provides the request execution layer of the client. It turns typed
// commands into HTTP requests against the nodes of a cluster and handles failover,
// topology updates and response caching on the way.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the module, including the client
//     configuration, the wire types, the error kinds and logging.
//
//   - command: The ICommand contract and the commands of the document and compare
//     exchange api.
//
//   - executor: The RequestExecutor that selects nodes, retries transient failures
//     and keeps topology, node health and the response cache.
//
//   - transport: Network communication abstractions with the HTTP implementation.
//
//   - client: Implementations of the store and lock manager interfaces on top of
//     the executor.
//
//   - server: An in-memory cluster with fault injection, used by the tests and the
//     serve command.
package rpc
