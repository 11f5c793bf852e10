// Package store defines the storage interfaces the client offers on top of the
// request executor.
//
// The package only holds the contracts, the implementations backed by a cluster live
// in the rpc/client package:
//
//   - IStore: json documents with etags. Writes can be made conditional on the etag
//     of the version the caller read before (optimistic concurrency).
//
//   - ICompareExchange: cluster wide values with an index that only change if the
//     caller knows the current index. The lockmgr package builds locks on top of it.
//
// Errors returned by implementations are *common.ExecutionError values, so callers
// can use errors.Is with the sentinels of the rpc/common package:
//
//	_, err := s.Put(ctx, "users/1", value, etag)
//	if errors.Is(err, common.ErrConflict) {
//		// somebody else changed the document in the meantime
//	}
package store
