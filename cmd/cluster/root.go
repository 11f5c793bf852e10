package cluster

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/dClient/cmd/util"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/spf13/cobra"
)

var (
	rpcExecutor *executor.RequestExecutor

	// ClusterCommands represents the cluster command group
	ClusterCommands = &cobra.Command{
		Use:                "cluster",
		Short:              "Inspect the cluster as seen by the client",
		PersistentPreRunE:  setupExecutor,
		PersistentPostRunE: closeExecutor,
	}

	topologyCmd = &cobra.Command{
		Use:   "topology",
		Short: "Fetch and print the topology of the database",
		Args:  cobra.NoArgs,
		RunE:  runTopology,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)
	util.SetupRPCClientFlags(ClusterCommands)
	ClusterCommands.AddCommand(topologyCmd)
}

func setupExecutor(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	var err error
	rpcExecutor, err = util.NewExecutor()
	return err
}

func closeExecutor(_ *cobra.Command, _ []string) error {
	if rpcExecutor == nil {
		return nil
	}
	return rpcExecutor.Close()
}

func runTopology(cmd *cobra.Command, _ []string) error {
	if err := rpcExecutor.UpdateTopology(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch topology: %w", err)
	}
	t := rpcExecutor.Topology()

	fmt.Printf("database=%s, stamp=%s, nodes=%d\n\n", rpcExecutor.Config().Database, t.Stamp, t.Len())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TAG\tURL\tROLE")
	for _, n := range t.Nodes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", n.ClusterTag, n.URL, n.ServerRole)
	}
	_ = w.Flush()

	if health := rpcExecutor.NodeHealth(); len(health) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NODE\tFAILURES\tLAST ERROR\tRETRY AT")
		for _, h := range health {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", h.Key, h.ConsecutiveFailures, h.LastKind, h.NextRetry.Format(time.RFC3339))
		}
		_ = w.Flush()
	}
	return nil
}
