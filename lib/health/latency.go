package health

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	// latencyReservoir is the number of samples kept per node
	latencyReservoir = 128
	// latencyAlpha biases the sample towards the last few minutes
	latencyAlpha = 0.015
)

// Latencies keeps an exponentially decaying latency sample per node.
type Latencies struct {
	histograms *xsync.MapOf[string, gometrics.Histogram]
}

// NewLatencies creates an empty latency registry
func NewLatencies() *Latencies {
	return &Latencies{
		histograms: xsync.NewMapOf[string, gometrics.Histogram](),
	}
}

// Record adds a successful response time of the node
func (l *Latencies) Record(key string, d time.Duration) {
	h, _ := l.histograms.LoadOrCompute(key, func() gometrics.Histogram {
		return gometrics.NewHistogram(gometrics.NewExpDecaySample(latencyReservoir, latencyAlpha))
	})
	h.Update(d.Microseconds())
}

// Mean returns the mean latency of the node and whether a sample exists
func (l *Latencies) Mean(key string) (time.Duration, bool) {
	h, ok := l.histograms.Load(key)
	if !ok || h.Count() == 0 {
		return 0, false
	}
	return time.Duration(h.Mean() * float64(time.Microsecond)), true
}

// Forget drops the sample of the node
func (l *Latencies) Forget(key string) {
	l.histograms.Delete(key)
}
