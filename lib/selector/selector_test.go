package selector

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/lib/health"
	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopology() *topology.Topology {
	return &topology.Topology{
		Nodes: []topology.Node{
			{URL: "http://r", ClusterTag: "R", Database: "db", ServerRole: topology.RoleRehab},
			{URL: "http://a", ClusterTag: "A", Database: "db", ServerRole: topology.RoleMember},
			{URL: "http://b", ClusterTag: "B", Database: "db", ServerRole: topology.RoleMember},
			{URL: "http://c", ClusterTag: "C", Database: "db", ServerRole: topology.RoleMember},
		},
		Stamp: topology.Stamp{Term: 1, Index: 1},
	}
}

func newTestSelector(behavior common.ReadBalanceBehavior) (*Selector, *health.Tracker, *health.Latencies) {
	tr := health.NewTracker(common.BackoffConfig{InitialInterval: time.Hour, MaxInterval: 4 * time.Hour, Multiplier: 2})
	lat := health.NewLatencies()
	return New(behavior, 4, tr, lat), tr, lat
}

func tags(nodes []topology.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ClusterTag
	}
	return out
}

func key(url string) string {
	return topology.Node{URL: url, Database: "db"}.Key()
}

func TestMembersFirst(t *testing.T) {
	s, _, _ := newTestSelector(common.ReadBalanceNone)

	sel := s.Select(testTopology(), false, "")
	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(sel.Candidates))
	assert.Empty(t, sel.Skipped)
	assert.False(t, sel.Speculative)

	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Broadcast(testTopology())))
}

func TestRoundRobinRotatesReadsOnly(t *testing.T) {
	s, _, _ := newTestSelector(common.ReadBalanceRoundRobin)
	top := testTopology()

	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Select(top, true, "").Candidates))
	assert.Equal(t, []string{"B", "C", "A", "R"}, tags(s.Select(top, true, "").Candidates))
	assert.Equal(t, []string{"C", "A", "B", "R"}, tags(s.Select(top, true, "").Candidates))
	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Select(top, true, "").Candidates))

	// writes are never balanced
	for i := 0; i < 3; i++ {
		assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Select(top, false, "").Candidates))
	}
}

func TestFastestNodeOrdering(t *testing.T) {
	s, _, lat := newTestSelector(common.ReadBalanceFastestNode)
	top := testTopology()

	lat.Record(key("http://c"), 5*time.Millisecond)
	lat.Record(key("http://b"), 10*time.Millisecond)
	lat.Record(key("http://a"), 20*time.Millisecond)
	lat.Record(key("http://r"), 1*time.Millisecond)

	sel := s.Select(top, true, "")
	assert.Equal(t, []string{"R", "C", "B", "A"}, tags(sel.Candidates))

	// writes ignore the latency
	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Select(top, false, "").Candidates))
}

func TestSpeculativeProbesUnmeasuredNodes(t *testing.T) {
	s, _, lat := newTestSelector(common.ReadBalanceFastestNode)
	top := testTopology()

	// nothing measured: race the first two
	sel := s.Select(top, true, "")
	assert.True(t, sel.Speculative)
	assert.Equal(t, []string{"A", "B"}, tags(sel.Candidates[:2]))

	// A and B measured: the unmeasured C is raced against the fastest
	lat.Record(key("http://a"), 10*time.Millisecond)
	lat.Record(key("http://b"), 20*time.Millisecond)
	sel = s.Select(top, true, "")
	assert.True(t, sel.Speculative)
	assert.Equal(t, []string{"A", "C", "B", "R"}, tags(sel.Candidates))

	// everything measured: race only every probeEvery reads
	lat.Record(key("http://c"), 30*time.Millisecond)
	lat.Record(key("http://r"), 40*time.Millisecond)
	speculative := 0
	for i := 0; i < 8; i++ {
		if s.Select(top, true, "").Speculative {
			speculative++
		}
	}
	assert.Equal(t, 2, speculative)

	// never for writes or other behaviors
	assert.False(t, s.Select(top, false, "").Speculative)
	rr, _, _ := newTestSelector(common.ReadBalanceRoundRobin)
	assert.False(t, rr.Select(top, true, "").Speculative)
}

func TestBackingOffNodesAreSkipped(t *testing.T) {
	s, tr, _ := newTestSelector(common.ReadBalanceNone)
	top := testTopology()

	tr.OnFailure(key("http://a"), common.KindNetworkUnavailable)
	sel := s.Select(top, false, "")
	assert.Equal(t, []string{"B", "C", "R"}, tags(sel.Candidates))
	assert.Equal(t, []string{"A"}, tags(sel.Skipped))
	assert.False(t, sel.AllInBackoff)

	tr.OnSuccess(key("http://a"))
	assert.Equal(t, []string{"A", "B", "C", "R"}, tags(s.Select(top, false, "").Candidates))
}

func TestAllInBackoffOrdersByNextRetry(t *testing.T) {
	s, tr, _ := newTestSelector(common.ReadBalanceNone)
	top := testTopology()

	tr.OnFailure(key("http://a"), common.KindNetworkUnavailable)
	tr.OnFailure(key("http://a"), common.KindNetworkUnavailable) // two hours
	tr.OnFailure(key("http://c"), common.KindNetworkUnavailable)
	tr.OnFailure(key("http://r"), common.KindNetworkUnavailable)
	tr.OnFailure(key("http://b"), common.KindNetworkUnavailable)

	sel := s.Select(top, false, "")
	require.True(t, sel.AllInBackoff)
	assert.Empty(t, sel.Skipped)
	assert.Len(t, sel.Candidates, 4)
	assert.Equal(t, "A", sel.Candidates[3].ClusterTag)
}

func TestSessionHint(t *testing.T) {
	s, tr, _ := newTestSelector(common.ReadBalanceNone)
	top := testTopology()

	sel := s.Select(top, true, key("http://c"))
	assert.Equal(t, []string{"C", "A", "B", "R"}, tags(sel.Candidates))

	// writes ignore the hint
	assert.Equal(t, "A", s.Select(top, false, key("http://c")).Candidates[0].ClusterTag)

	// a backing off preferred node is not used
	tr.OnFailure(key("http://c"), common.KindNetworkUnavailable)
	assert.Equal(t, []string{"A", "B", "R"}, tags(s.Select(top, true, key("http://c")).Candidates))

	// unknown keys are ignored
	assert.Equal(t, "A", s.Select(top, true, key("http://zzz")).Candidates[0].ClusterTag)
}

func TestEmptyTopology(t *testing.T) {
	s, _, _ := newTestSelector(common.ReadBalanceNone)
	assert.Empty(t, s.Select(&topology.Topology{}, true, "").Candidates)
}
