package executor

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// executorMetrics holds the counters of one executor in its own metrics set
type executorMetrics struct {
	set      *metrics.Set
	database string

	requests         *metrics.Counter
	attempts         *metrics.Counter
	cacheHits        *metrics.Counter
	topologyUpdates  *metrics.Counter
	refreshTriggers  *metrics.Counter
	speculativeRaces *metrics.Counter
	broadcasts       *metrics.Counter
	duration         *metrics.Histogram
}

func newExecutorMetrics(database string) *executorMetrics {
	set := metrics.NewSet()
	name := func(metric string) string {
		return fmt.Sprintf(`%s{database=%q}`, metric, database)
	}
	return &executorMetrics{
		set:              set,
		database:         database,
		requests:         set.NewCounter(name("dclient_requests_total")),
		attempts:         set.NewCounter(name("dclient_attempts_total")),
		cacheHits:        set.NewCounter(name("dclient_cache_hits_total")),
		topologyUpdates:  set.NewCounter(name("dclient_topology_updates_total")),
		refreshTriggers:  set.NewCounter(name("dclient_topology_refresh_triggers_total")),
		speculativeRaces: set.NewCounter(name("dclient_speculative_races_total")),
		broadcasts:       set.NewCounter(name("dclient_broadcasts_total")),
		duration:         set.NewHistogram(name("dclient_request_duration_seconds")),
	}
}

// failure counts a failed execution by kind
func (m *executorMetrics) failure(kind common.ErrorKind) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`dclient_failures_total{database=%q,kind=%q}`, m.database, kind.String())).Inc()
}

// observe records the duration of an execution
func (m *executorMetrics) observe(start time.Time) {
	m.duration.UpdateDuration(start)
}

func (m *executorMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
