package health

import (
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(start time.Time) (*Tracker, *time.Time) {
	now := start
	tr := NewTracker(common.BackoffConfig{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	})
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestBackoffCurveIsMonotonicAndCapped(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := newTestTracker(start)

	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		2 * time.Second,
	}
	for i, w := range want {
		next := tr.OnFailure("a", common.KindNetworkUnavailable)
		assert.Equal(t, w, next.Sub(start), "failure %d", i+1)
	}

	e, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5, e.ConsecutiveFailures)
	assert.Equal(t, common.KindNetworkUnavailable, e.LastKind)
	assert.Equal(t, start, e.LastFailure)
}

func TestEligibility(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := newTestTracker(start)

	assert.True(t, tr.IsEligible("a", start), "unknown nodes are eligible")
	assert.True(t, tr.NextEligible("a").IsZero())

	tr.OnFailure("a", common.KindNodeNotResponding)
	assert.False(t, tr.IsEligible("a", start))
	assert.False(t, tr.IsEligible("a", start.Add(249*time.Millisecond)))
	assert.True(t, tr.IsEligible("a", start.Add(250*time.Millisecond)))
	assert.Equal(t, start.Add(250*time.Millisecond), tr.NextEligible("a"))
}

func TestSuccessClearsEntry(t *testing.T) {
	tr, _ := newTestTracker(time.Now())

	tr.OnFailure("a", common.KindNetworkUnavailable)
	tr.OnFailure("a", common.KindNetworkUnavailable)
	tr.OnFailure("b", common.KindNetworkUnavailable)
	require.Len(t, tr.Snapshot(), 2)

	tr.OnSuccess("a")
	_, ok := tr.Get("a")
	assert.False(t, ok)
	assert.True(t, tr.IsEligible("a", tr.Now()))

	// the backoff restarts from the initial interval after a success
	next := tr.OnFailure("a", common.KindNetworkUnavailable)
	assert.Equal(t, 250*time.Millisecond, next.Sub(tr.Now()))

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)
	assert.Equal(t, 1, snap[0].ConsecutiveFailures)

	tr.Reset()
	assert.Empty(t, tr.Snapshot())
}

func TestConcurrentFailuresAreCounted(t *testing.T) {
	tr, _ := newTestTracker(time.Now())

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.OnFailure("a", common.KindNetworkUnavailable)
		}()
	}
	wg.Wait()

	e, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, n, e.ConsecutiveFailures)
}

func TestLatencies(t *testing.T) {
	l := NewLatencies()

	_, ok := l.Mean("a")
	assert.False(t, ok)

	l.Record("a", 10*time.Millisecond)
	l.Record("a", 30*time.Millisecond)
	l.Record("b", 5*time.Millisecond)

	a, ok := l.Mean("a")
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, a)

	b, ok := l.Mean("b")
	require.True(t, ok)
	assert.Less(t, b, a)

	l.Forget("a")
	_, ok = l.Mean("a")
	assert.False(t, ok)
}
