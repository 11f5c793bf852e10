package selector

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dClient/lib/health"
	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("selector")

// Selection is the ordered list of nodes an execution should try.
type Selection struct {
	// Candidates in the order they should be attempted
	Candidates []topology.Node
	// Skipped holds the nodes left out because they are backing off
	Skipped []topology.Node
	// Speculative is set if the first two candidates should be raced
	Speculative bool
	// AllInBackoff is set if no node was eligible and Candidates is ordered
	// by the earliest next retry instead
	AllInBackoff bool
}

// Selector orders the nodes of a topology for a single command execution.
type Selector struct {
	behavior   common.ReadBalanceBehavior
	probeEvery uint64
	tracker    *health.Tracker
	latencies  *health.Latencies

	roundRobin atomic.Uint64
	reads      atomic.Uint64
}

// New creates a selector using the read balance behavior, node health and latencies
func New(behavior common.ReadBalanceBehavior, probeEvery int, tracker *health.Tracker, latencies *health.Latencies) *Selector {
	if probeEvery <= 0 {
		probeEvery = 64
	}
	return &Selector{
		behavior:   behavior,
		probeEvery: uint64(probeEvery),
		tracker:    tracker,
		latencies:  latencies,
	}
}

// Behavior returns the configured read balance behavior
func (s *Selector) Behavior() common.ReadBalanceBehavior {
	return s.behavior
}

// --------------------------------------------------------------------------
// Selection
// --------------------------------------------------------------------------

// Select returns the candidates for a command. Writes always use the topology order
// with members first. Reads are balanced according to the behavior and may start
// with the preferred node of the session (by node key) if it is eligible.
func (s *Selector) Select(t *topology.Topology, read bool, preferred string) Selection {
	nodes := membersFirst(t)
	if len(nodes) == 0 {
		return Selection{}
	}

	now := s.tracker.Now()
	hinted := false
	if read {
		nodes = s.balance(nodes)
		if preferred != "" && s.tracker.IsEligible(preferred, now) {
			nodes, hinted = moveToFront(nodes, preferred)
		}
	}

	// Health filtering
	sel := Selection{Candidates: make([]topology.Node, 0, len(nodes))}
	for _, n := range nodes {
		if s.tracker.IsEligible(n.Key(), now) {
			sel.Candidates = append(sel.Candidates, n)
		} else {
			sel.Skipped = append(sel.Skipped, n)
		}
	}

	if len(sel.Candidates) == 0 {
		sel.Candidates = s.byNextEligible(nodes)
		sel.Skipped = nil
		sel.AllInBackoff = true
		Logger.Debugf("all %d nodes are backing off, trying them by earliest retry", len(nodes))
		return sel
	}

	if read && !hinted && s.behavior == common.ReadBalanceFastestNode && len(sel.Candidates) >= 2 {
		sel.Speculative = s.speculate(sel.Candidates)
	}
	return sel
}

// Broadcast returns every node of the topology, members first
func (s *Selector) Broadcast(t *topology.Topology) []topology.Node {
	return membersFirst(t)
}

// balance reorders the nodes for a read request
func (s *Selector) balance(nodes []topology.Node) []topology.Node {
	switch s.behavior {
	case common.ReadBalanceRoundRobin:
		members := countMembers(nodes)
		if members <= 1 {
			return nodes
		}
		offset := int((s.roundRobin.Add(1) - 1) % uint64(members))
		out := make([]topology.Node, 0, len(nodes))
		out = append(out, nodes[offset:members]...)
		out = append(out, nodes[:offset]...)
		out = append(out, nodes[members:]...)
		return out

	case common.ReadBalanceFastestNode:
		type ranked struct {
			node   topology.Node
			mean   time.Duration
			sample bool
		}
		rs := make([]ranked, len(nodes))
		for i, n := range nodes {
			mean, ok := s.latencies.Mean(n.Key())
			rs[i] = ranked{node: n, mean: mean, sample: ok}
		}
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].sample != rs[j].sample {
				return rs[i].sample
			}
			return rs[i].mean < rs[j].mean
		})
		out := make([]topology.Node, len(rs))
		for i, r := range rs {
			out[i] = r.node
		}
		return out

	default:
		return nodes
	}
}

// speculate decides whether the first two candidates are raced. A node without a
// latency sample is moved to the second position so it gets measured, otherwise the
// top two are raced every probeEvery reads.
func (s *Selector) speculate(candidates []topology.Node) bool {
	n := s.reads.Add(1)
	for i := 1; i < len(candidates); i++ {
		if _, ok := s.latencies.Mean(candidates[i].Key()); !ok {
			if i != 1 {
				probe := candidates[i]
				copy(candidates[2:i+1], candidates[1:i])
				candidates[1] = probe
			}
			return true
		}
	}
	if _, ok := s.latencies.Mean(candidates[0].Key()); !ok {
		return true
	}
	return n%s.probeEvery == 0
}

// byNextEligible orders the nodes by their earliest retry time
func (s *Selector) byNextEligible(nodes []topology.Node) []topology.Node {
	out := append([]topology.Node{}, nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		return s.tracker.NextEligible(out[i].Key()).Before(s.tracker.NextEligible(out[j].Key()))
	})
	return out
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// membersFirst returns a copy of the topology nodes with the members first,
// keeping the topology order inside both groups
func membersFirst(t *topology.Topology) []topology.Node {
	if t.Len() == 0 {
		return nil
	}
	out := make([]topology.Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.IsMember() {
			out = append(out, n)
		}
	}
	for _, n := range t.Nodes {
		if !n.IsMember() {
			out = append(out, n)
		}
	}
	return out
}

func countMembers(nodes []topology.Node) int {
	c := 0
	for _, n := range nodes {
		if n.IsMember() {
			c++
		}
	}
	return c
}

// moveToFront moves the node with the given key to the front
func moveToFront(nodes []topology.Node, key string) ([]topology.Node, bool) {
	for i, n := range nodes {
		if n.Key() == key {
			if i == 0 {
				return nodes, true
			}
			out := make([]topology.Node, 0, len(nodes))
			out = append(out, n)
			out = append(out, nodes[:i]...)
			out = append(out, nodes[i+1:]...)
			return out, true
		}
	}
	return nodes, false
}
