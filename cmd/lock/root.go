package lock

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dClient/cmd/util"
	"github.com/ValentinKolb/dClient/lib/lockmgr"
	"github.com/ValentinKolb/dClient/rpc/client"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/spf13/cobra"
)

var (
	rpcExecutor    *executor.RequestExecutor
	rpcLockMgr     lockmgr.ILockManager
	acquireTimeout time.Duration
	broadcast      bool

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:                "lock",
		Short:              "Perform lock operations",
		PersistentPreRunE:  setupLockClient,
		PersistentPostRunE: closeLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the key and owner ID. The owner ID is returned by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	LockCommands.PersistentFlags().BoolVar(&broadcast, "broadcast", false, util.WrapString("Send the lock writes to all nodes at once, the first answer wins"))

	// Add flags specific to acquire
	acquireCmd.Flags().DurationVar(&acquireTimeout, "timeout", 30*time.Second, "Lock timeout (0 for no timeout)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcExecutor, err = util.NewExecutor()
	if err != nil {
		return err
	}
	rpcLockMgr = client.NewRPCLockMgr(rpcExecutor, broadcast)
	return nil
}

func closeLockClient(_ *cobra.Command, _ []string) error {
	if rpcExecutor == nil {
		return nil
	}
	return rpcExecutor.Close()
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	key := args[0]

	acquired, ownerID, err := rpcLockMgr.AcquireLock(cmd.Context(), key, acquireTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		fmt.Printf("acquired=false\n")
		return nil
	}

	fmt.Printf("acquired=true, ownerId=%s\n", ownerID)
	return nil
}

// runRelease handles the release lock command
func runRelease(cmd *cobra.Command, args []string) error {
	key := args[0]
	ownerID := args[1]

	released, err := rpcLockMgr.ReleaseLock(cmd.Context(), key, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	fmt.Printf("released=%v\n", released)
	return nil
}
