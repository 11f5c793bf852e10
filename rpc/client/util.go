package client

import (
	"context"

	"github.com/ValentinKolb/dClient/rpc/command"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPCStore and RPCCompareExchange with composition pattern
type rpcClientAdapter struct {
	executor *executor.RequestExecutor
	session  *executor.ExecutionContext
	// broadcast sends raft writes to all nodes at once instead of one after the other
	broadcast bool
}

func newAdapter(e *executor.RequestExecutor, broadcast bool) rpcClientAdapter {
	return rpcClientAdapter{
		executor:  e,
		session:   executor.NewExecutionContext(),
		broadcast: broadcast,
	}
}

// invokeRPCCommand is a helper function used for all RPC Clients to execute commands.
// Writes are broadcast if the adapter is configured to do so, all other commands
// are executed with failover. Every execution uses the session of the client.
func invokeRPCCommand[T any](ctx context.Context, a rpcClientAdapter, cmd command.ICommand[T]) (T, error) {
	opts := []executor.ExecuteOption{executor.WithExecutionContext(a.session)}

	if _, raft := command.RaftIdOf(cmd); raft && a.broadcast {
		return executor.Broadcast(ctx, a.executor, cmd, opts...)
	}
	res, err := executor.Execute(ctx, a.executor, cmd, opts...)
	if err != nil {
		Logger.Debugf("%s failed: %v", command.NameOf(cmd), err)
	}
	return res, err
}
