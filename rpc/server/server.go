package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Dev cluster
// --------------------------------------------------------------------------

// NewDevCluster creates a cluster with one member node per configured endpoint
//
// Usage:
//
//	c := server.NewDevCluster(config)
//	if err := c.Serve(ctx, config, func() transport.IRPCServerTransport {
//		return http.NewHttpServerTransport(config.LogLevel == "debug")
//	}); err != nil {
//		panic(err)
//	}
func NewDevCluster(config common.ServerConfig) *Cluster {
	Logger.Infof("Created dev cluster")
	Logger.Infof(config.String())

	c := NewCluster(config.Database)
	for _, tag := range config.Tags() {
		n := c.AddNode(tag, topology.RoleMember)
		n.SetURL(advertisedURL(config.Endpoints[tag]))
	}
	return c
}

// Serve serves every node on its endpoint (and the metrics on the metrics endpoint)
// until the context is canceled or one listener fails.
func (c *Cluster) Serve(ctx context.Context, config common.ServerConfig, newTransport func() transport.IRPCServerTransport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(config.Endpoints)+1)

	listen := func(endpoint string, handler http.Handler) {
		t := newTransport()
		t.RegisterHandler(handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.Listen(ctx, endpoint); err != nil {
				errCh <- fmt.Errorf("listener %s: %w", endpoint, err)
				cancel()
			}
		}()
	}

	for _, tag := range config.Tags() {
		n, ok := c.Node(tag)
		if !ok {
			return fmt.Errorf("node %s does not exist", tag)
		}
		listen(config.Endpoints[tag], n)
	}
	if config.MetricsEndpoint != "" {
		listen(config.MetricsEndpoint, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.WritePrometheus(w, true)
		}))
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// advertisedURL turns a listen address into the url published in the topology
func advertisedURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimRight(endpoint, "/")
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "http://" + endpoint
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// --------------------------------------------------------------------------
// Local cluster (tests, benchmarks)
// --------------------------------------------------------------------------

// LocalCluster is a cluster whose nodes are served on loopback test servers
type LocalCluster struct {
	*Cluster
	servers []*httptest.Server
}

// StartLocal starts a cluster with one member node per tag on loopback servers
func StartLocal(database string, tags ...string) *LocalCluster {
	lc := &LocalCluster{Cluster: NewCluster(database)}
	for _, tag := range tags {
		lc.StartNode(tag, topology.RoleMember)
	}
	return lc
}

// StartNode adds a node to the cluster and serves it
func (lc *LocalCluster) StartNode(tag string, role topology.ServerRole) *Node {
	n := lc.AddNode(tag, role)
	srv := httptest.NewServer(n)
	n.SetURL(srv.URL)
	lc.servers = append(lc.servers, srv)
	return n
}

// MustNode returns the node with the tag and panics if it does not exist
func (lc *LocalCluster) MustNode(tag string) *Node {
	n, ok := lc.Node(tag)
	if !ok {
		panic(fmt.Sprintf("node %s does not exist", tag))
	}
	return n
}

// URLs returns the urls of all nodes in topology order
func (lc *LocalCluster) URLs() []string {
	t := lc.Topology()
	urls := make([]string, 0, t.Len())
	for _, n := range t.Nodes {
		urls = append(urls, n.URL)
	}
	return urls
}

// Close stops all servers
func (lc *LocalCluster) Close() {
	for _, srv := range lc.servers {
		srv.CloseClientConnections()
		srv.Close()
	}
}
