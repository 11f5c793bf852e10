package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/dClient/cmd/cluster"
	"github.com/ValentinKolb/dClient/cmd/docs"
	"github.com/ValentinKolb/dClient/cmd/lock"
	"github.com/ValentinKolb/dClient/cmd/serve"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dclient",
		Short: "client for replicated document databases",
		Long: fmt.Sprintf(`dClient (v%s)

A client for replicated document databases written in Go. Requests are routed
through a request executor that follows the cluster topology, fails over to
healthy nodes and caches responses by ETag.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dClient",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dClient v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(docs.DocumentCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(cluster.ClusterCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	defer common.SyncLoggers()
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
