package serve

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dClient/cmd/util"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/server"
	"github.com/ValentinKolb/dClient/rpc/transport"
	"github.com/ValentinKolb/dClient/rpc/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start an in-memory development cluster",
		Long: `Start an in-memory development cluster. Every node serves the same replicated
state on its own endpoint, so clients can be tested against a real topology. The
configuration can be set via command line flags or environment variables. The format
of the environment variables is DCLIENT_<flag> (e.g. DCLIENT_NODES=A=:8080,B=:8081)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "database"
	ServeCmd.PersistentFlags().String(key, "db", cmdUtil.WrapString("The database served by every node"))

	key = "nodes"
	ServeCmd.PersistentFlags().String(key, "A=0.0.0.0:8080,B=0.0.0.0:8081,C=0.0.0.0:8082", cmdUtil.WrapString("Comma-separated list of nodes in the format 'TAG=address'"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:9090", cmdUtil.WrapString("The address of the prometheus metrics endpoint (empty to disable)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse nodes
	serveCmdConfig.Endpoints = make(map[string]string)
	for _, node := range strings.Split(viper.GetString("nodes"), ",") {
		parts := strings.SplitN(strings.TrimSpace(node), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid node format: %s (expected TAG=address)", node)
		}
		if _, exists := serveCmdConfig.Endpoints[parts[0]]; exists {
			return fmt.Errorf("duplicate node tag: %s", parts[0])
		}
		serveCmdConfig.Endpoints[parts[0]] = parts[1]
	}

	serveCmdConfig.Database = viper.GetString("database")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Database == "" {
		return fmt.Errorf("database must not be empty")
	}
	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	return nil
}

// run starts the dev cluster until the process is interrupted
func run(cmd *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig.LogLevel)
	defer common.SyncLoggers()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debug := serveCmdConfig.LogLevel == "debug"
	c := server.NewDevCluster(*serveCmdConfig)
	return c.Serve(ctx, *serveCmdConfig, func() transport.IRPCServerTransport {
		return http.NewHttpServerTransport(debug)
	})
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(cmdUtil.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
