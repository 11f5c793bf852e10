package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/ValentinKolb/dClient/rpc/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DCLIENT_URLS)
	EnvPrefix = "dclient"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds the connection flags of the request executor to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig("")

	key := "urls"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("Comma-separated seed urls of the cluster nodes. The full topology is fetched from the first node that answers"))

	key = "database"
	cmd.PersistentFlags().String(key, "db", WrapString("The database to connect to"))

	key = "read-balance"
	cmd.PersistentFlags().String(key, defaults.ReadBalanceBehavior.String(), WrapString("How reads are spread over the nodes (None, RoundRobin, FastestNode)"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, defaults.RequestTimeout, WrapString("The timeout of a single attempt against one node"))

	key = "leader-wait-timeout"
	cmd.PersistentFlags().Duration(key, defaults.LeaderWaitTimeout, WrapString("How long writes wait for the cluster to elect a leader"))

	key = "max-retries"
	cmd.PersistentFlags().Int(key, defaults.MaxRetryAttempts, WrapString("How many other nodes to try after the first one failed (-1 tries every node of the topology)"))

	key = "disable-topology-updates"
	cmd.PersistentFlags().Bool(key, false, WrapString("Only use the seed urls and never fetch the topology"))

	key = "topology-refresh"
	cmd.PersistentFlags().Duration(key, defaults.TopologyRefreshInterval, WrapString("Interval of the background topology refresh"))

	key = "backoff-initial"
	cmd.PersistentFlags().Duration(key, defaults.Backoff.InitialInterval, WrapString("Backoff of a node after its first failure, doubled for every further failure"))

	key = "backoff-max"
	cmd.PersistentFlags().Duration(key, defaults.Backoff.MaxInterval, WrapString("Maximum backoff of a failing node"))

	key = "cache-size"
	cmd.PersistentFlags().Int(key, defaults.Cache.MaxEntries, WrapString("Maximum number of cached responses"))

	key = "no-cache"
	cmd.PersistentFlags().Bool(key, false, WrapString("Disable the response cache"))

	key = "max-response-size"
	cmd.PersistentFlags().Int64(key, defaults.MaxResponseBytes, WrapString("Maximum size in bytes of a response body, larger responses fail the attempt"))

	key = "tls-cert"
	cmd.PersistentFlags().String(key, "", WrapString("Client certificate file for mutual TLS"))

	key = "tls-key"
	cmd.PersistentFlags().String(key, "", WrapString("Client key file for mutual TLS"))

	key = "tls-ca"
	cmd.PersistentFlags().String(key, "", WrapString("CA file used to verify the nodes"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	var urls []string
	for _, u := range strings.Split(viper.GetString("urls"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	behavior, err := common.ParseReadBalanceBehavior(viper.GetString("read-balance"))
	if err != nil {
		return nil, err
	}

	conf := common.DefaultClientConfig(viper.GetString("database"), urls...)
	conf.ReadBalanceBehavior = behavior
	conf.RequestTimeout = viper.GetDuration("request-timeout")
	conf.LeaderWaitTimeout = viper.GetDuration("leader-wait-timeout")
	conf.MaxRetryAttempts = viper.GetInt("max-retries")
	conf.DisableTopologyUpdates = viper.GetBool("disable-topology-updates")
	conf.TopologyRefreshInterval = viper.GetDuration("topology-refresh")
	conf.Backoff.InitialInterval = viper.GetDuration("backoff-initial")
	conf.Backoff.MaxInterval = viper.GetDuration("backoff-max")
	conf.Cache.MaxEntries = viper.GetInt("cache-size")
	conf.Cache.Disabled = viper.GetBool("no-cache")
	conf.MaxResponseBytes = viper.GetInt64("max-response-size")
	conf.TLS = common.TLSConfig{
		CertFile: viper.GetString("tls-cert"),
		KeyFile:  viper.GetString("tls-key"),
		CAFile:   viper.GetString("tls-ca"),
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// NewExecutor initializes the loggers and creates a request executor from the configuration
func NewExecutor() (*executor.RequestExecutor, error) {
	level := viper.GetString("log-level")
	if _, err := common.ParseLogLevel(level); err != nil {
		return nil, err
	}
	common.InitLoggers(level)

	conf, err := GetClientConfig()
	if err != nil {
		return nil, err
	}
	e, err := executor.NewRequestExecutor(*conf, http.NewHttpClientTransport())
	if err != nil {
		return nil, fmt.Errorf("failed to create request executor: %w", err)
	}
	return e, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
