// Package common provides core data structures and utilities shared across
// the cluster client. It defines fundamental types, configuration structures,
// the error taxonomy and the wire protocol used by the other packages.
//
// The package focuses on:
//   - Wire protocol definition (headers, topology, document and error bodies)
//   - Configuration structures for the request executor and the dev cluster
//   - The ErrorKind taxonomy and the ExecutionError returned for every failed command
//   - Custom logging implementation integrated with Dragonboat's logger registry
//
// Key Components:
//
//   - Request / Response: A single HTTP exchange with one node. Commands build
//     requests, transports return fully read responses.
//
//   - ErrorKind: Stable, discriminable failure categories. Transient kinds
//     (NetworkUnavailable, NodeNotResponding, LeaderUnavailable) are recovered by
//     moving to another node, fatal kinds are surfaced immediately and terminal kinds
//     (AllTopologyNodesDownException, TimeoutException) aggregate every attempt.
//
//   - ClientConfig: Settings of a request executor (seed urls, read balancing,
//     timeouts, retry and backoff budget, cache and TLS settings).
//
//   - ServerConfig: Settings of the in-memory development cluster.
//
//   - Logger: Dragonboat logger.ILogger implementation backed by zap, installed
//     with InitLoggers.
package common
