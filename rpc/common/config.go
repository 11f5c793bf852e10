package common

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Read balance behavior
// --------------------------------------------------------------------------

// ReadBalanceBehavior decides how read requests are spread over the cluster nodes.
type ReadBalanceBehavior uint8

const (
	ReadBalanceNone        ReadBalanceBehavior = iota // Always use the first member of the topology
	ReadBalanceRoundRobin                             // Rotate reads among the members
	ReadBalanceFastestNode                            // Prefer the node with the lowest observed latency
)

// String returns the string representation of a ReadBalanceBehavior.
func (b ReadBalanceBehavior) String() string {
	switch b {
	case ReadBalanceNone:
		return "None"
	case ReadBalanceRoundRobin:
		return "RoundRobin"
	case ReadBalanceFastestNode:
		return "FastestNode"
	default:
		return "Unknown"
	}
}

// ParseReadBalanceBehavior converts a (case-insensitive) name to a ReadBalanceBehavior.
func ParseReadBalanceBehavior(s string) (ReadBalanceBehavior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ReadBalanceNone, nil
	case "roundrobin", "round-robin":
		return ReadBalanceRoundRobin, nil
	case "fastestnode", "fastest-node", "fastest":
		return ReadBalanceFastestNode, nil
	default:
		return ReadBalanceNone, fmt.Errorf("invalid read balance behavior: %s (expected one of None, RoundRobin, FastestNode)", s)
	}
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// BackoffConfig controls the exponential backoff applied to failing nodes.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// CacheConfig controls the ETag response cache.
type CacheConfig struct {
	Disabled   bool
	MaxEntries int
}

// TLSConfig holds the files used for mutual TLS. An explicit Config takes precedence.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
	Config   *tls.Config
}

// Enabled reports whether any TLS setting was provided.
func (c TLSConfig) Enabled() bool {
	return c.Config != nil || c.CertFile != "" || c.CAFile != ""
}

// ClientConfig holds all settings of a request executor for one database.
type ClientConfig struct {
	// Seed urls of the cluster nodes and the database name
	Urls     []string
	Database string

	// Node selection
	ReadBalanceBehavior   ReadBalanceBehavior
	FastestNodeProbeEvery int

	// Topology
	DisableTopologyUpdates  bool
	TopologyRefreshInterval time.Duration

	// Timeouts and retries
	RequestTimeout    time.Duration
	MaxRetryAttempts  int // -1 means topology size - 1
	LeaderWaitTimeout time.Duration
	Backoff           BackoffConfig

	// Response cache
	Cache CacheConfig

	// Transport
	TLS                 TLSConfig
	MaxIdleConnsPerHost int
	MaxResponseBytes    int64 // responses with a larger body are rejected
}

// DefaultClientConfig returns a ClientConfig with all defaults applied.
func DefaultClientConfig(database string, urls ...string) ClientConfig {
	return ClientConfig{
		Urls:                    urls,
		Database:                database,
		ReadBalanceBehavior:     ReadBalanceNone,
		FastestNodeProbeEvery:   64,
		DisableTopologyUpdates:  false,
		TopologyRefreshInterval: 5 * time.Minute,
		RequestTimeout:          30 * time.Second,
		MaxRetryAttempts:        -1,
		LeaderWaitTimeout:       30 * time.Second,
		Backoff: BackoffConfig{
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
		},
		Cache: CacheConfig{
			MaxEntries: 4096,
		},
		MaxIdleConnsPerHost: 16,
		MaxResponseBytes:    64 << 20,
	}
}

// Validate checks the configuration and fills zero values with defaults.
func (c *ClientConfig) Validate() error {
	if len(c.Urls) == 0 {
		return fmt.Errorf("no urls provided")
	}
	for i, u := range c.Urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			return fmt.Errorf("url %d is empty", i)
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("url %q must start with http:// or https://", u)
		}
		c.Urls[i] = u
	}
	if c.Database == "" {
		return fmt.Errorf("no database provided")
	}
	if c.MaxRetryAttempts < -1 {
		return fmt.Errorf("max retry attempts must be >= -1, got %d", c.MaxRetryAttempts)
	}

	defaults := DefaultClientConfig(c.Database)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.TopologyRefreshInterval <= 0 {
		c.TopologyRefreshInterval = defaults.TopologyRefreshInterval
	}
	if c.LeaderWaitTimeout <= 0 {
		c.LeaderWaitTimeout = defaults.LeaderWaitTimeout
	}
	if c.FastestNodeProbeEvery <= 0 {
		c.FastestNodeProbeEvery = defaults.FastestNodeProbeEvery
	}
	if c.Backoff.InitialInterval <= 0 {
		c.Backoff.InitialInterval = defaults.Backoff.InitialInterval
	}
	if c.Backoff.MaxInterval <= 0 {
		c.Backoff.MaxInterval = defaults.Backoff.MaxInterval
	}
	if c.Backoff.Multiplier < 1 {
		c.Backoff.Multiplier = defaults.Backoff.Multiplier
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = defaults.Cache.MaxEntries
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaults.MaxResponseBytes
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Database", c.Database)
	addField("Read Balance", c.ReadBalanceBehavior.String())
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Leader Wait Timeout", c.LeaderWaitTimeout.String())
	if c.MaxRetryAttempts < 0 {
		addField("Max Retry Attempts", "topology size - 1")
	} else {
		addField("Max Retry Attempts", strconv.Itoa(c.MaxRetryAttempts))
	}

	addSection("Topology")
	addField("Updates Disabled", strconv.FormatBool(c.DisableTopologyUpdates))
	addField("Refresh Interval", c.TopologyRefreshInterval.String())

	addSection("Backoff")
	addField("Initial Interval", c.Backoff.InitialInterval.String())
	addField("Max Interval", c.Backoff.MaxInterval.String())
	addField("Multiplier", strconv.FormatFloat(c.Backoff.Multiplier, 'f', 2, 64))

	addSection("Cache")
	addField("Disabled", strconv.FormatBool(c.Cache.Disabled))
	addField("Max Entries", strconv.Itoa(c.Cache.MaxEntries))

	addSection("Transport")
	addField("Mutual TLS", strconv.FormatBool(c.TLS.Enabled()))
	addField("Idle Conns Per Host", strconv.Itoa(c.MaxIdleConnsPerHost))
	addField("Max Response Bytes", strconv.FormatInt(c.MaxResponseBytes, 10))

	addSection("Urls")
	for i, u := range c.Urls {
		addField(strconv.Itoa(i), u)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Dev cluster configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the settings of the in-memory development cluster.
type ServerConfig struct {
	// Database served by every node
	Database string

	// Endpoints maps a cluster tag to the address the node listens on
	Endpoints map[string]string

	// Endpoint of the metrics listener (empty disables it)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Tags returns the cluster tags in a stable order
func (c *ServerConfig) Tags() []string {
	tags := make([]string, 0, len(c.Endpoints))
	for tag := range c.Endpoints {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Dev Cluster")
	addField("Database", c.Database)
	addField("Metrics Endpoint", c.MetricsEndpoint)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Nodes")
	for _, tag := range c.Tags() {
		addField(tag, c.Endpoints[tag])
	}
	return sb.String()
}
