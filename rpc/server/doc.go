// Package server implements an in-memory cluster serving one database from several
// nodes over HTTP. It is used as development cluster by the serve command and as the
// counterpart of the request executor in tests.
//
// The package focuses on:
//   - The wire protocol of the nodes (topology, documents, compare exchange)
//   - Raft-like replicated state shared by all nodes, deduplicated by Raft-Request-Id
//   - ETags and conditional GETs (304 Not Modified)
//   - Failure injection: faults per node, answer delays and a leader availability switch
//   - Membership changes, announced with the Refresh-Topology response header
//
// Key Components:
//
//   - Cluster: The replicated state and the membership. Writes are rejected with a
//     LeaderUnavailable error while the leader is switched off. A write whose raft id was
//     already applied returns the stored answer and does not change the state again.
//
//   - Node: An http.Handler serving the api of one node. Every node counts the requests
//     it received and the requests the client abandoned.
//
//   - LocalCluster: A Cluster whose nodes run on loopback test servers.
//
// Usage Example:
//
//	lc := server.StartLocal("db", "A", "B", "C")
//	defer lc.Close()
//
//	lc.MustNode("A").SetFault(server.FaultDrop)
//	lc.SetLeaderAvailable(false)
//
// Thread Safety:
//
//	All methods of Cluster and Node are safe for concurrent use.
package server
