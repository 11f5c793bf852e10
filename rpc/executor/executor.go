package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/dClient/lib/cache"
	"github.com/ValentinKolb/dClient/lib/health"
	"github.com/ValentinKolb/dClient/lib/selector"
	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/command"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("executor")

// RequestExecutor executes commands against the nodes of one database. It owns the
// topology, the node health, the latency samples and the response cache, and is
// shared by all sessions of the database connection.
type RequestExecutor struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport

	topology  *topology.Store
	tracker   *health.Tracker
	latencies *health.Latencies
	selector  *selector.Selector
	cache     *cache.ResponseCache
	metrics   *executorMetrics

	// firstUpdate is closed once the initial topology update finished
	firstUpdate chan struct{}

	// background refreshes triggered by executions
	ctx       context.Context
	ctxCancel context.CancelFunc
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// NewRequestExecutor validates the config, connects the transport and starts the initial
// topology update in the background. Executions wait for that update to finish.
func NewRequestExecutor(config common.ClientConfig, t transport.IRPCClientTransport) (*RequestExecutor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if err := t.Connect(config); err != nil {
		return nil, fmt.Errorf("failed to connect transport: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tracker := health.NewTracker(config.Backoff)
	latencies := health.NewLatencies()

	e := &RequestExecutor{
		config:      config,
		transport:   t,
		tracker:     tracker,
		latencies:   latencies,
		selector:    selector.New(config.ReadBalanceBehavior, config.FastestNodeProbeEvery, tracker, latencies),
		cache:       cache.NewResponseCache(config.Cache.MaxEntries),
		metrics:     newExecutorMetrics(config.Database),
		firstUpdate: make(chan struct{}),
		ctx:         ctx,
		ctxCancel:   cancel,
	}

	e.topology = topology.NewStore(topology.Config{
		Database:        config.Database,
		Seeds:           config.Urls,
		DisableUpdates:  config.DisableTopologyUpdates,
		RefreshInterval: config.TopologyRefreshInterval,
		FetchTimeout:    config.RequestTimeout,
		Backoff:         config.Backoff,
	}, e)
	e.topology.OnChange(e.onTopologyChange)

	if config.DisableTopologyUpdates {
		close(e.firstUpdate)
	} else {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer close(e.firstUpdate)
			if _, err := e.topology.Update(e.ctx); err != nil {
				Logger.Warningf("initial topology update failed, using the seed urls: %v", err)
			}
		}()
	}
	e.topology.Start()

	Logger.Infof("request executor for %s started with %d seed url(s)", config.Database, len(config.Urls))
	return e, nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Config returns the validated configuration
func (e *RequestExecutor) Config() common.ClientConfig {
	return e.config
}

// Topology returns the current topology snapshot
func (e *RequestExecutor) Topology() *topology.Topology {
	return e.topology.Current()
}

// NodeHealth returns the failure entries of all unhealthy nodes
func (e *RequestExecutor) NodeHealth() []health.Entry {
	return e.tracker.Snapshot()
}

// Cache returns the response cache
func (e *RequestExecutor) Cache() *cache.ResponseCache {
	return e.cache
}

// TopologyFetches returns the number of topology fetches issued
func (e *RequestExecutor) TopologyFetches() uint64 {
	return e.topology.Fetches()
}

// WriteMetrics writes the executor metrics in the prometheus text format
func (e *RequestExecutor) WriteMetrics(w io.Writer) {
	e.metrics.write(w)
}

// UpdateTopology forces a topology update. Concurrent updates share one fetch.
func (e *RequestExecutor) UpdateTopology(ctx context.Context) error {
	_, err := e.topology.Update(ctx)
	return err
}

// Close stops all background work and closes the transport
func (e *RequestExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.ctxCancel()
	e.topology.Close()
	e.wg.Wait()
	return e.transport.Close()
}

// --------------------------------------------------------------------------
// Topology
// --------------------------------------------------------------------------

// FetchTopology implements topology.IFetcher using the executor transport
func (e *RequestExecutor) FetchTopology(ctx context.Context, node topology.Node) (*topology.Topology, error) {
	cmd := command.NewGetTopologyCommand(e.config.Database, 0)
	req, err := cmd.CreateRequest(node)
	if err != nil {
		return nil, err
	}

	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		kind, payload := common.ClassifyResponse(resp)
		return nil, &common.ExecutionError{
			Kind:       kind,
			Message:    payload.Message,
			StatusCode: resp.StatusCode,
			Payload:    resp.Body,
			Node:       node.URL,
		}
	}
	return cmd.ParseResponse(resp.Body, false)
}

func (e *RequestExecutor) onTopologyChange(old, cur *topology.Topology) {
	e.metrics.topologyUpdates.Inc()

	// forget the samples of removed nodes
	for _, n := range old.Nodes {
		if _, ok := cur.Find(n.Key()); !ok {
			e.latencies.Forget(n.Key())
			e.tracker.OnSuccess(n.Key())
		}
	}
}

// refreshAsync triggers a topology update without waiting for it
func (e *RequestExecutor) refreshAsync(reason string) {
	if e.config.DisableTopologyUpdates {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	e.metrics.refreshTriggers.Inc()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.topology.Update(e.ctx); err != nil && e.ctx.Err() == nil {
			Logger.Warningf("topology refresh (%s) failed: %v", reason, err)
		}
	}()
}

// awaitTopology blocks until the initial topology update finished
func (e *RequestExecutor) awaitTopology(ctx context.Context) error {
	select {
	case <-e.firstUpdate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maxAttempts returns the number of attempts of one execution for a topology size
func (e *RequestExecutor) maxAttempts(size int) int {
	if e.config.MaxRetryAttempts < 0 {
		return size
	}
	return e.config.MaxRetryAttempts + 1
}

// attemptTimeout returns the per attempt timeout of a command
func (e *RequestExecutor) attemptTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return e.config.RequestTimeout
}
