package docs

import (
	"github.com/ValentinKolb/dClient/cmd/util"
	"github.com/ValentinKolb/dClient/lib/store"
	"github.com/ValentinKolb/dClient/rpc/client"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/spf13/cobra"
)

var (
	rpcExecutor *executor.RequestExecutor
	rpcStore    store.IStore

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:                "docs",
		Short:              "Perform document operations",
		PersistentPreRunE:  setupDocsClient,
		PersistentPostRunE: closeDocsClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the docs command
	util.SetupRPCClientFlags(DocumentCommands)

	// Add subcommands
	DocumentCommands.AddCommand(putCmd)
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(delCmd)
	DocumentCommands.AddCommand(hasCmd)
	DocumentCommands.AddCommand(perfTestCmd)
}

// setupDocsClient initializes the request executor and the store client
func setupDocsClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcExecutor, err = util.NewExecutor()
	if err != nil {
		return err
	}
	rpcStore = client.NewRPCStore(rpcExecutor)
	return nil
}

func closeDocsClient(_ *cobra.Command, _ []string) error {
	if rpcExecutor == nil {
		return nil
	}
	return rpcExecutor.Close()
}
