// Package command defines the ICommand contract executed by the request executor
// and the commands of the document and compare exchange api.
//
// A command builds one HTTP request for a given node and parses the body of a
// successful response into its typed result. Commands are stateless with respect to
// the node, the executor may replay them against any node of the topology.
//
// Writes that must be applied exactly once implement IRaftCommand. The executor sends
// their id in the Raft-Request-Id header on every attempt, the cluster uses it to
// deduplicate retries that reached different nodes. Broadcast execution is only
// available for these commands.
package command
