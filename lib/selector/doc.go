// Package selector orders the nodes of a topology for a single command execution.
//
// Writes use the topology order with members first. Reads are balanced according to
// the configured behavior:
//   - None: topology order
//   - RoundRobin: rotates the starting member on every read
//   - FastestNode: ascending mean latency, nodes without a sample after measured ones
//
// Nodes that are backing off after failures are left out and reported as skipped. When
// every node is backing off the selector still returns all of them, ordered by their
// earliest retry time, so the cluster is never declared down on bookkeeping alone.
//
// Under FastestNode the selection may be marked speculative, in which case the executor
// races the first two candidates and keeps the first success.
package selector
