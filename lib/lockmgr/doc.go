// Package lockmgr implements a locking mechanism on top of the compare exchange
// values of a cluster (store.ICompareExchange). It provides a simple way to
// coordinate access to shared resources across multiple processes.
//
// The lockmgr only ever stores in the provided ICompareExchange and has no other
// internal state. Therefore it is safe to be created multiple times on the same store,
// all locks work as expected as long as the same cluster is used.
//
// Implementation Approach:
//
//	- Lock Acquisition: Writes the key with index 0, which only succeeds if the key
//	  does not exist yet. The value holds a random owner ID (uuid) and the optional
//	  expiration time.
//
//	- Timeouts: A lock whose expiration time has passed may be taken over by a new
//	  owner. The takeover writes with the index of the expired value, so only one of
//	  several competing owners succeeds.
//
//	- Safe Release: ReleaseLock reads the lock, compares the owner ID and deletes the
//	  key with the index it read. A lock taken over in the meantime is not released.
//
// Usage Example:
//
//	lm := lockmgr.NewLockManager(client.NewRPCCompareExchange(executor, false))
//
//	ok, ownerID, err := lm.AcquireLock(ctx, "locks/resource:123", 30*time.Second)
//	if err != nil {
//	    // Handle error
//	}
//	if ok {
//	    // Use the resource safely
//	    released, err := lm.ReleaseLock(ctx, "locks/resource:123", ownerID)
//	}
//
// Lock operations require 1-3 compare exchange operations each, their cost depends
// on the cluster round trips.
package lockmgr
