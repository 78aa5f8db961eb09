package memory

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the subsystem's prometheus collectors. Failures of the
// durable and scoring dependencies surface here and in logs, never as
// errors on the public API.
type Metrics struct {
	Saves            prometheus.Counter
	SaveRetries      prometheus.Counter
	SaveFailures     prometheus.Counter
	DegradedSaves    prometheus.Counter
	PrunedMessages   prometheus.Counter
	CoalescedFlushes prometheus.Counter
	BufferMessages   prometheus.Gauge
	BufferBytes      prometheus.Gauge
}

// NewMetrics creates the collector set. Collectors are unregistered until
// Register is called, so multiple Memory instances can share one set or
// keep private ones.
func NewMetrics() *Metrics {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: "memkeep",
			Subsystem: "memory",
			Name:      name,
			Help:      help,
		}
	}
	return &Metrics{
		Saves:            prometheus.NewCounter(opts("saves_total", "Durable snapshot writes that succeeded.")),
		SaveRetries:      prometheus.NewCounter(opts("save_retries_total", "Durable snapshot write attempts that were retried.")),
		SaveFailures:     prometheus.NewCounter(opts("save_failures_total", "Durable snapshot writes that exhausted all retries.")),
		DegradedSaves:    prometheus.NewCounter(opts("degraded_saves_total", "Saves skipped because the durable store was unreachable.")),
		PrunedMessages:   prometheus.NewCounter(opts("pruned_messages_total", "Messages evicted by relevance pruning.")),
		CoalescedFlushes: prometheus.NewCounter(opts("coalesced_flushes_total", "Flush requests dropped into an in-flight write.")),
		BufferMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memkeep",
			Subsystem: "memory",
			Name:      "buffer_messages",
			Help:      "Messages currently held in the in-process buffer.",
		}),
		BufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memkeep",
			Subsystem: "memory",
			Name:      "buffer_bytes",
			Help:      "Estimated byte footprint of the in-process buffer.",
		}),
	}
}

// Register registers all collectors on reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Saves,
		m.SaveRetries,
		m.SaveFailures,
		m.DegradedSaves,
		m.PrunedMessages,
		m.CoalescedFlushes,
		m.BufferMessages,
		m.BufferBytes,
	)
}

func (m *Metrics) observeBuffer(b *Buffer) {
	m.BufferMessages.Set(float64(b.Len()))
	m.BufferBytes.Set(float64(b.Size()))
}
