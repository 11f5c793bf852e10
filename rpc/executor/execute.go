package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/dClient/lib/cache"
	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/command"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/cenkalti/backoff/v4"
)

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Execute runs the command against the nodes of the topology and returns its parsed
// result. Transient failures move on to the next candidate node, fatal failures are
// returned immediately. Writes rejected because the cluster has no leader are retried
// until the leader wait budget is used up. Every error is a *common.ExecutionError.
func Execute[T any](ctx context.Context, e *RequestExecutor, cmd command.ICommand[T], opts ...ExecuteOption) (T, error) {
	x := newExecution(e, cmd, opts)
	defer e.metrics.observe(x.start)

	if err := e.awaitTopology(ctx); err != nil {
		var zero T
		return zero, x.fail(x.contextError(ctx))
	}

	res, err := x.run(ctx)
	if err != nil {
		return res, x.fail(err)
	}
	return res, nil
}

// Broadcast sends the command to all nodes of the topology at once. The first success
// wins and the other calls are canceled. Only commands with a raft request id may be
// broadcast, since the cluster must be able to deduplicate the copies.
func Broadcast[T any](ctx context.Context, e *RequestExecutor, cmd command.ICommand[T], opts ...ExecuteOption) (T, error) {
	var zero T
	x := newExecution(e, cmd, opts)
	defer e.metrics.observe(x.start)

	if _, ok := command.RaftIdOf(cmd); !ok {
		return zero, x.fail(common.NewExecutionError(common.KindBadRequest,
			fmt.Sprintf("%s cannot be broadcast: it has no raft request id", x.name), nil))
	}
	if err := e.awaitTopology(ctx); err != nil {
		return zero, x.fail(x.contextError(ctx))
	}

	e.metrics.broadcasts.Inc()
	nodes := e.selector.Broadcast(e.topology.Current())
	winner, outcomes := race(ctx, nodes, x.attempt)
	if winner != nil {
		x.recordLosers(outcomes)
		return x.succeed(winner), nil
	}
	if ctx.Err() != nil {
		return zero, x.fail(x.contextError(ctx))
	}

	for _, o := range outcomes {
		x.record(o)
	}
	for _, o := range outcomes {
		if o.fatal() {
			return zero, x.fail(x.fatalError(o))
		}
	}
	if x.refreshOnce() {
		e.refreshAsync("broadcast failed")
	}
	return zero, x.fail(x.allNodesDown(len(nodes)))
}

// --------------------------------------------------------------------------
// Execution
// --------------------------------------------------------------------------

// outcome is the result of a single attempt against one node
type outcome[T any] struct {
	node      topology.Node
	value     T
	ok        bool
	kind      common.ErrorKind
	message   string
	status    int
	payload   []byte
	cause     error
	duration  time.Duration
	fromCache bool
}

// fatal reports whether the failure stops the execution
func (o *outcome[T]) fatal() bool {
	return !o.ok && !o.kind.Transient() && !o.kind.Terminal()
}

// execution is the state of one command execution
type execution[T any] struct {
	e     *RequestExecutor
	cmd   command.ICommand[T]
	opts  executeOptions
	name  string
	read  bool
	start time.Time

	attempts  []common.NodeAttempt
	refreshed bool
}

func newExecution[T any](e *RequestExecutor, cmd command.ICommand[T], opts []ExecuteOption) *execution[T] {
	e.metrics.requests.Inc()
	return &execution[T]{
		e:     e,
		cmd:   cmd,
		opts:  applyOptions(opts),
		name:  command.NameOf(cmd),
		read:  cmd.IsReadRequest(),
		start: time.Now(),
	}
}

// run is the retry loop: select the candidates, then work through them reacting to the
// error kind of every attempt until one succeeds or the budget is used up.
func (x *execution[T]) run(ctx context.Context) (T, error) {
	var zero T
	e := x.e

	top := e.topology.Current()
	sel := e.selector.Select(top, x.read, x.opts.ec.PreferredNode())
	for _, n := range sel.Skipped {
		x.attempts = append(x.attempts, common.NodeAttempt{
			Node:       n.URL,
			ClusterTag: n.ClusterTag,
			Skipped:    true,
			Message:    "backing off until " + e.tracker.NextEligible(n.Key()).Format(time.RFC3339Nano),
		})
	}

	queue := sel.Candidates
	budget := e.maxAttempts(top.Len())
	used := 0
	var leaderWait *backoff.ExponentialBackOff
	var leaderDeadline time.Time

	for len(queue) > 0 && used < budget {
		if ctx.Err() != nil {
			return zero, x.contextError(ctx)
		}

		// Speculative race of the first two candidates, if the budget covers both
		if sel.Speculative && used == 0 && len(queue) >= 2 && budget-used >= 2 {
			sel.Speculative = false
			e.metrics.speculativeRaces.Inc()
			winner, outcomes := race(ctx, queue[:2], x.attempt)
			queue = queue[2:]
			used += 2
			if winner != nil {
				x.recordLosers(outcomes)
				return x.succeed(winner), nil
			}
			if ctx.Err() != nil {
				return zero, x.contextError(ctx)
			}
			for _, o := range outcomes {
				if err := x.handleFailure(o); err != nil {
					return zero, err
				}
			}
			continue
		}

		node := queue[0]
		queue = queue[1:]
		o := x.attemptWithin(ctx, node, leaderDeadline)
		used++

		if o.ok {
			return x.succeed(o), nil
		}
		if o.kind.Terminal() {
			if ctx.Err() == nil && !leaderDeadline.IsZero() {
				return zero, x.leaderTimeout()
			}
			return zero, x.contextError(ctx)
		}

		// The cluster has no leader: wait and retry the members in rotation
		if o.kind == common.KindLeaderUnavailable && !x.read {
			x.record(o)
			used--
			if leaderWait == nil {
				leaderWait = x.newLeaderWait()
				leaderDeadline = x.start.Add(e.config.LeaderWaitTimeout)
			}
			if err := x.waitForLeader(ctx, leaderWait, leaderDeadline); err != nil {
				return zero, err
			}
			queue = append(queue, node)
			continue
		}

		if err := x.handleFailure(o); err != nil {
			return zero, err
		}
	}

	if ctx.Err() != nil {
		return zero, x.contextError(ctx)
	}
	return zero, x.allNodesDown(top.Len())
}

// handleFailure records a failed attempt and returns an error if the execution must stop
func (x *execution[T]) handleFailure(o *outcome[T]) error {
	x.record(o)
	if o.fatal() {
		return x.fatalError(o)
	}
	if o.kind.Transient() && x.refreshOnce() {
		x.e.refreshAsync(fmt.Sprintf("%s failed on %s", x.name, o.node.URL))
	}
	return nil
}

// record adds the attempt to the history and updates the node health. Attempts
// canceled by the executor itself are neither failures nor part of the history.
func (x *execution[T]) record(o *outcome[T]) {
	if o.ok || o.kind == common.KindCanceled {
		return
	}
	x.attempts = append(x.attempts, common.NodeAttempt{
		Node:       o.node.URL,
		ClusterTag: o.node.ClusterTag,
		Kind:       o.kind,
		Message:    o.message,
		Duration:   o.duration,
	})
	if o.kind == common.KindNetworkUnavailable || o.kind == common.KindNodeNotResponding {
		x.e.tracker.OnFailure(o.node.Key(), o.kind)
	}
	Logger.Debugf("%s failed on %s with %s: %s", x.name, o.node, o.kind, o.message)
}

// recordLosers records the failed calls of a race that had a winner
func (x *execution[T]) recordLosers(outcomes []*outcome[T]) {
	for _, o := range outcomes {
		x.record(o)
	}
}

// refreshOnce reports true for the first failure of the execution
func (x *execution[T]) refreshOnce() bool {
	if x.refreshed {
		return false
	}
	x.refreshed = true
	return true
}

// succeed updates health, latencies and the session hint for a successful attempt
func (x *execution[T]) succeed(o *outcome[T]) T {
	e := x.e
	key := o.node.Key()
	e.tracker.OnSuccess(key)
	e.latencies.Record(key, o.duration)
	if o.fromCache {
		e.metrics.cacheHits.Inc()
	}
	if !x.read {
		x.opts.ec.SetPreferredNode(key)
	}
	return o.value
}

func (x *execution[T]) fail(err error) error {
	var ee *common.ExecutionError
	if errors.As(err, &ee) {
		if ee.Elapsed == 0 {
			ee.Elapsed = time.Since(x.start)
		}
		x.e.metrics.failure(ee.Kind)
	}
	return err
}

// --------------------------------------------------------------------------
// Attempt
// --------------------------------------------------------------------------

// attempt sends the command to a single node with the per attempt timeout
func (x *execution[T]) attempt(ctx context.Context, node topology.Node) *outcome[T] {
	e := x.e
	o := &outcome[T]{node: node}
	start := time.Now()
	e.metrics.attempts.Inc()

	req, err := x.cmd.CreateRequest(node)
	if err != nil {
		o.kind = common.KindOf(err)
		if o.kind == common.KindUnknown {
			o.kind = common.KindBadRequest
		}
		o.message = err.Error()
		o.cause = err
		return o
	}

	// Conditional request for cached reads
	var cached *cache.Entry
	useCache := x.read && req.Method == http.MethodGet && !x.opts.noCache && !e.config.Cache.Disabled
	if useCache {
		if c, ok := e.cache.Get(req.URL); ok {
			cached = c
			req.Header.Set(common.HeaderIfNoneMatch, c.ETag)
		}
	}
	if id, ok := command.RaftIdOf(x.cmd); ok {
		req.Header.Set(common.HeaderRaftRequestID, id)
	}
	if stamp := e.topology.Current().Stamp; stamp.Index > 0 {
		req.Header.Set(common.HeaderTopologyIndex, strconv.FormatUint(stamp.Index, 10))
	}

	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout(x.cmd.Timeout()))
	defer cancel()

	resp, err := e.transport.Send(actx, req)
	o.duration = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			o.kind = common.KindCanceled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				o.kind = common.KindTimeout
			}
		} else {
			o.kind = common.KindNetworkUnavailable
		}
		o.message = err.Error()
		o.cause = err
		return o
	}

	if resp.Header.Get(common.HeaderRefreshTopology) == "true" {
		e.refreshAsync("requested by " + node.URL)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		o.fromCache = true
		x.parse(o, cached.Body, true)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body := resp.Body
		if body == nil {
			body = []byte{}
		}
		if x.parse(o, body, false) && useCache {
			e.cache.Put(req.URL, resp.Header.Get(common.HeaderETag), body)
		}

	case resp.StatusCode == http.StatusNotFound && x.read:
		if useCache {
			e.cache.Invalidate(req.URL)
		}
		x.parse(o, nil, false)

	default:
		kind, payload := common.ClassifyResponse(resp)
		o.kind = kind
		o.message = payload.Message
		o.status = resp.StatusCode
		o.payload = resp.Body
	}
	return o
}

// attemptWithin runs the attempt, bounded by the leader wait deadline once the wait started
func (x *execution[T]) attemptWithin(ctx context.Context, node topology.Node, deadline time.Time) *outcome[T] {
	if deadline.IsZero() {
		return x.attempt(ctx, node)
	}
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return x.attempt(dctx, node)
}

// parse runs the command parser on the body and fills the outcome
func (x *execution[T]) parse(o *outcome[T], body []byte, fromCache bool) bool {
	v, err := x.cmd.ParseResponse(body, fromCache)
	if err != nil {
		o.kind = common.KindParseError
		o.message = err.Error()
		o.cause = err
		o.payload = body
		return false
	}
	o.value = v
	o.ok = true
	return true
}

// --------------------------------------------------------------------------
// Leader wait
// --------------------------------------------------------------------------

func (x *execution[T]) newLeaderWait() *backoff.ExponentialBackOff {
	conf := x.e.config.Backoff
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conf.InitialInterval
	b.Multiplier = conf.Multiplier
	b.MaxInterval = conf.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// waitForLeader sleeps for the next backoff interval, bounded by the deadline of the
// leader wait budget. Reaching the deadline ends the execution with a timeout.
func (x *execution[T]) waitForLeader(ctx context.Context, b *backoff.ExponentialBackOff, deadline time.Time) error {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return x.leaderTimeout()
	}

	wait := b.NextBackOff()
	if wait > remaining {
		wait = remaining
	}
	Logger.Debugf("%s: no leader, retrying in %s", x.name, wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return x.contextError(ctx)
	case <-timer.C:
	}

	if !time.Now().Before(deadline) {
		return x.leaderTimeout()
	}
	return nil
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

func (x *execution[T]) fatalError(o *outcome[T]) error {
	return &common.ExecutionError{
		Kind:       o.kind,
		Message:    o.message,
		StatusCode: o.status,
		Payload:    o.payload,
		Node:       o.node.URL,
		Attempts:   x.attempts,
		Elapsed:    time.Since(x.start),
	}
}

func (x *execution[T]) allNodesDown(topologySize int) error {
	elapsed := time.Since(x.start)
	err := common.NewExecutionError(common.KindAllTopologyNodesDown, "", nil)
	err.Attempts = x.attempts
	err.Elapsed = elapsed
	err.Message = fmt.Sprintf("%s failed after %s: tried %d of %d node(s), all of them are unavailable",
		x.name, common.FormatElapsed(elapsed), err.NodesAttempted(), topologySize)
	return err
}

func (x *execution[T]) leaderTimeout() error {
	elapsed := time.Since(x.start)
	err := common.NewExecutionError(common.KindTimeout,
		fmt.Sprintf("%s failed with timeout after %s: %s", x.name, common.FormatElapsed(elapsed), common.NoLeaderMessage), nil)
	err.Attempts = x.attempts
	err.Elapsed = elapsed
	return err
}

// contextError converts the end of the caller context into a terminal error
func (x *execution[T]) contextError(ctx context.Context) error {
	elapsed := time.Since(x.start)
	cause := ctx.Err()
	var err *common.ExecutionError
	if errors.Is(cause, context.DeadlineExceeded) {
		err = common.NewExecutionError(common.KindTimeout,
			fmt.Sprintf("%s failed with timeout after %s", x.name, common.FormatElapsed(elapsed)), cause)
	} else {
		err = common.NewExecutionError(common.KindCanceled,
			fmt.Sprintf("%s was canceled after %s", x.name, common.FormatElapsed(elapsed)), cause)
	}
	err.Attempts = x.attempts
	err.Elapsed = elapsed
	return err
}

// --------------------------------------------------------------------------
// Race
// --------------------------------------------------------------------------

// race runs fn against all nodes concurrently. The first success cancels the others.
// race returns only after every call returned, so no call outlives the race.
func race[T any](ctx context.Context, nodes []topology.Node, fn func(context.Context, topology.Node) *outcome[T]) (*outcome[T], []*outcome[T]) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *outcome[T], len(nodes))
	for _, n := range nodes {
		go func(n topology.Node) {
			results <- fn(rctx, n)
		}(n)
	}

	var winner *outcome[T]
	outcomes := make([]*outcome[T], 0, len(nodes))
	for range nodes {
		o := <-results
		if o.ok && winner == nil {
			winner = o
			cancel()
			continue
		}
		outcomes = append(outcomes, o)
	}

	// keep the failures in node order
	ordered := make([]*outcome[T], 0, len(outcomes))
	for _, n := range nodes {
		for _, o := range outcomes {
			if o.node.Key() == n.Key() {
				ordered = append(ordered, o)
			}
		}
	}
	return winner, ordered
}
