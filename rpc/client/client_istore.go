package client

import (
	"context"
	"encoding/json"

	"github.com/ValentinKolb/dClient/lib/store"
	"github.com/ValentinKolb/dClient/rpc/command"
	"github.com/ValentinKolb/dClient/rpc/executor"
)

// NewRPCStore creates a new RPC store on top of the request executor.
// The store has its own session: after a write, the following reads prefer the node
// that accepted the write.
func NewRPCStore(e *executor.RequestExecutor) store.IStore {
	return &rpcStore{newAdapter(e, false)}
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Put(ctx context.Context, id string, value json.RawMessage, etag string) (string, error) {
	resp, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewPutDocumentCommand(id, value, etag))
	if err != nil {
		return "", err
	}
	return resp.Etag, nil
}

func (i *rpcStore) Get(ctx context.Context, id string) (store.Document, bool, error) {
	doc, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewGetDocumentCommand(id))
	if err != nil || doc == nil {
		return store.Document{}, false, err
	}
	return store.Document{
		Id:        doc.Id,
		Etag:      doc.Etag,
		Value:     doc.Value,
		FromCache: doc.FromCache,
	}, true, nil
}

func (i *rpcStore) Has(ctx context.Context, id string) (bool, error) {
	_, loaded, err := i.Get(ctx, id)
	return loaded, err
}

func (i *rpcStore) Delete(ctx context.Context, id string, etag string) (bool, error) {
	resp, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewDeleteDocumentCommand(id, etag))
	if err != nil {
		return false, err
	}
	return resp.Deleted, nil
}
