// Package cmd implements the command-line interface of dClient. It provides a
// hierarchical command structure to talk to a cluster through the request executor
// and to run an in-memory development cluster.
//
// The package is organized into several subpackages:
//
//   - docs: Commands for document operations (put, get, del, has, perf)
//   - lock: Commands for locking operations (acquire, release)
//   - cluster: Commands to inspect the topology and node health
//   - serve: Command for starting the development cluster
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dclient -help for a list of all commands.
package cmd
