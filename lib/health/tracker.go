package health

import (
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("health")

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is a read only copy of the failure bookkeeping of one node.
type Entry struct {
	Key                 string
	ConsecutiveFailures int
	LastFailure         time.Time
	LastKind            common.ErrorKind
	NextRetry           time.Time
}

// entry is the mutable per node state, guarded by its own mutex
type entry struct {
	mu      sync.Mutex
	state   Entry
	backoff *backoff.ExponentialBackOff
}

// --------------------------------------------------------------------------
// Tracker
// --------------------------------------------------------------------------

// Tracker records consecutive failures per node and gates re-attempts with an
// exponential backoff. Nodes without failures have no entry.
type Tracker struct {
	config  common.BackoffConfig
	entries *xsync.MapOf[string, *entry]
	now     func() time.Time
}

// NewTracker creates a tracker using the given backoff curve
func NewTracker(config common.BackoffConfig) *Tracker {
	return &Tracker{
		config:  config,
		entries: xsync.NewMapOf[string, *entry](),
		now:     time.Now,
	}
}

// newBackoff creates the per node backoff. Jitter is disabled, so the sequence of
// intervals is monotonic: initial, initial*m, initial*m^2, ... capped at the maximum.
func (t *Tracker) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.config.InitialInterval
	b.MaxInterval = t.config.MaxInterval
	b.Multiplier = t.config.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// OnSuccess clears the failure entry of the node
func (t *Tracker) OnSuccess(key string) {
	if _, ok := t.entries.LoadAndDelete(key); ok {
		Logger.Debugf("node %s recovered", key)
	}
}

// OnFailure records a failure of the node and returns its next eligible time
func (t *Tracker) OnFailure(key string, kind common.ErrorKind) time.Time {
	e, _ := t.entries.LoadOrCompute(key, func() *entry {
		return &entry{state: Entry{Key: key}, backoff: t.newBackoff()}
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	e.state.ConsecutiveFailures++
	e.state.LastFailure = now
	e.state.LastKind = kind
	e.state.NextRetry = now.Add(e.backoff.NextBackOff())

	Logger.Debugf("node %s failed %d time(s) with %s, backing off until %s",
		key, e.state.ConsecutiveFailures, kind, e.state.NextRetry.Format(time.RFC3339Nano))
	return e.state.NextRetry
}

// IsEligible reports whether the node may be attempted at the given time
func (t *Tracker) IsEligible(key string, now time.Time) bool {
	e, ok := t.entries.Load(key)
	if !ok {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !now.Before(e.state.NextRetry)
}

// NextEligible returns the earliest time the node may be attempted again.
// The zero time is returned for healthy nodes.
func (t *Tracker) NextEligible(key string) time.Time {
	e, ok := t.entries.Load(key)
	if !ok {
		return time.Time{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.NextRetry
}

// Get returns a copy of the entry of the node, if the node has failed since its last success
func (t *Tracker) Get(key string) (Entry, bool) {
	e, ok := t.entries.Load(key)
	if !ok {
		return Entry{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Now returns the current time of the tracker clock
func (t *Tracker) Now() time.Time {
	return t.now()
}

// Snapshot returns copies of all entries sorted by key
func (t *Tracker) Snapshot() []Entry {
	entries := make([]Entry, 0, t.entries.Size())
	t.entries.Range(func(key string, e *entry) bool {
		e.mu.Lock()
		entries = append(entries, e.state)
		e.mu.Unlock()
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Reset removes all entries
func (t *Tracker) Reset() {
	t.entries.Clear()
}
