package store

import (
	"context"
	"encoding/json"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Document is a json document together with the etag of its current version.
type Document struct {
	Id    string
	Etag  string
	Value json.RawMessage
	// FromCache is set if the document was answered from the local response cache
	FromCache bool
}

// IStore is the interface for interacting with a remote document store.
// Writes accept an optional etag: if set, the write only succeeds if the stored
// document still has that etag (optimistic concurrency), otherwise a conflict error
// is returned.
type IStore interface {
	// Put inserts or replaces a document and returns the etag of the new version.
	Put(ctx context.Context, id string, value json.RawMessage, etag string) (newEtag string, err error)
	// Get returns a document. The boolean return value indicates whether the document was found.
	Get(ctx context.Context, id string) (doc Document, loaded bool, err error)
	// Has returns whether a document exists in the store.
	Has(ctx context.Context, id string) (loaded bool, err error)
	// Delete deletes a document. It returns false if the document did not exist.
	Delete(ctx context.Context, id string, etag string) (deleted bool, err error)
}

// ICompareExchange is the interface of the cluster wide compare exchange values.
// Every value has an index, a write only succeeds if the given index matches the
// current one (0 for a key that does not exist yet).
type ICompareExchange interface {
	// GetCompareExchange returns the value and index of a key. The boolean return value
	// indicates whether the key exists.
	GetCompareExchange(ctx context.Context, key string) (value json.RawMessage, index uint64, loaded bool, err error)
	// PutCompareExchange sets the value if the index matches. It returns whether the value
	// was written and the current index.
	PutCompareExchange(ctx context.Context, key string, value json.RawMessage, index uint64) (ok bool, newIndex uint64, err error)
	// DeleteCompareExchange deletes the key if the index matches.
	DeleteCompareExchange(ctx context.Context, key string, index uint64) (ok bool, err error)
}
