// Package topology holds the cluster topology of a database: the ordered list of nodes
// serving it and the monotonic stamp (term, index) versioning that list.
//
// A Store publishes immutable *Topology snapshots through an atomic pointer. Readers call
// Current and never block. Writers only ever replace the whole snapshot, a fetched topology
// with an older stamp than the held one is discarded and an empty node list is rejected.
//
// Refreshes are coalesced: while one fetch is in flight every other Refresh or Update call
// waits for its outcome instead of issuing another request to the cluster. The fetch itself
// runs on the lifetime context of the store, so a caller abandoning its wait does not abort
// the fetch for everybody else.
//
// Start launches a periodic background refresh. A failing refresh is retried with a bounded
// exponential backoff, Close cancels the task and waits for it.
package topology
