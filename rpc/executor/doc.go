// Package executor implements the RequestExecutor, the failover core of the client.
//
// A RequestExecutor is created per database and shared by all sessions. It owns the
// topology store, the node health tracker, the latency samples and the response cache.
// Commands are run with the generic functions Execute and Broadcast:
//
//	e, err := executor.NewRequestExecutor(config, http.NewHttpClientTransport())
//	if err != nil {
//		panic(err)
//	}
//	defer e.Close()
//
//	doc, err := executor.Execute[*command.Document](ctx, e, command.NewGetDocumentCommand("users/1"))
//
// Execute selects the candidate nodes, then tries them one after the other. Transient
// failures (network errors, nodes not responding) mark the node in the health tracker
// and move on to the next candidate, fatal failures (conflicts, bad requests, parse
// errors) are returned at once. Writes rejected because the cluster has no leader are
// retried with backoff until the leader wait budget is used up. When every candidate
// failed the error is of kind AllTopologyNodesDown and lists all attempts.
//
// Reads send the cached ETag in If-None-Match and are answered from the cache on 304.
// The first failure of an execution and the Refresh-Topology response header trigger a
// background topology update, concurrent triggers share a single fetch.
package executor
