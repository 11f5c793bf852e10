package client

import (
	"context"
	"encoding/json"

	"github.com/ValentinKolb/dClient/lib/lockmgr"
	"github.com/ValentinKolb/dClient/lib/store"
	"github.com/ValentinKolb/dClient/rpc/command"
	"github.com/ValentinKolb/dClient/rpc/executor"
)

// NewRPCCompareExchange creates a client for the compare exchange values of the cluster.
// With broadcast set, writes are sent to all nodes at once and the first answer wins.
func NewRPCCompareExchange(e *executor.RequestExecutor, broadcast bool) store.ICompareExchange {
	return &rpcCompareExchange{newAdapter(e, broadcast)}
}

// NewRPCLockMgr creates a lock manager backed by the compare exchange values of the cluster
func NewRPCLockMgr(e *executor.RequestExecutor, broadcast bool) lockmgr.ILockManager {
	return lockmgr.NewLockManager(NewRPCCompareExchange(e, broadcast))
}

type rpcCompareExchange struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcCompareExchange) GetCompareExchange(ctx context.Context, key string) (json.RawMessage, uint64, bool, error) {
	v, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewGetCompareExchangeCommand(key))
	if err != nil || v == nil {
		return nil, 0, false, err
	}
	return v.Value, v.Index, true, nil
}

func (i *rpcCompareExchange) PutCompareExchange(ctx context.Context, key string, value json.RawMessage, index uint64) (bool, uint64, error) {
	res, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewPutCompareExchangeCommand(key, value, index))
	if err != nil {
		return false, 0, err
	}
	return res.Successful, res.Index, nil
}

func (i *rpcCompareExchange) DeleteCompareExchange(ctx context.Context, key string, index uint64) (bool, error) {
	res, err := invokeRPCCommand(ctx, i.rpcClientAdapter, command.NewDeleteCompareExchangeCommand(key, index))
	if err != nil {
		return false, err
	}
	return res.Successful, nil
}
