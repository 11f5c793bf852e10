// Package client implements the storage interfaces of the lib packages on top of a
// request executor. It provides implementations of store.IStore, store.ICompareExchange
// and lockmgr.ILockManager that talk to the nodes of a cluster.
//
// Every client owns a session (executor.ExecutionContext), reads after a write of the
// same client prefer the node that accepted the write. The executor itself is shared,
// so one executor per database is enough for any number of clients.
//
// Usage Example:
//
//	e, _ := executor.NewRequestExecutor(config, http.NewHttpClientTransport())
//	defer e.Close()
//
//	// Use the document store
//	s := client.NewRPCStore(e)
//	etag, _ := s.Put(ctx, "users/1", json.RawMessage(`{"name":"ada"}`), "")
//	doc, exists, _ := s.Get(ctx, "users/1")
//
//	// Create and use a lock manager, writes are broadcast to all nodes
//	lockMgr := client.NewRPCLockMgr(e, true)
//	acquired, ownerID, _ := lockMgr.AcquireLock(ctx, "locks/users/1", 30*time.Second)
//	if acquired {
//	  lockMgr.ReleaseLock(ctx, "locks/users/1", ownerID)
//	}
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
