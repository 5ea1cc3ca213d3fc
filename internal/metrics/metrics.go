// Package metrics registers byte-count, queue-depth and active-transfer
// collectors with prometheus/client_golang, the way the teacher's own
// stats.go registers counters for upload/download totals. clientengine
// and transfer update them; nothing in this repository reads them back:
// Supervisor.Speed() uses the ratelimit meters and PeerStatusAll() the
// per-session ratecount tallies. No HTTP exporter is wired: the UI's
// HTTP surface is out of scope per spec.md §1.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taco",
		Name:      "bytes_sent_total",
		Help:      "Total bytes sent across all peer sessions.",
	})
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taco",
		Name:      "bytes_received_total",
		Help:      "Total bytes received across all peer sessions.",
	})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taco",
		Name:      "queue_depth",
		Help:      "Number of pending messages in a peer's priority queue.",
	}, []string{"peer", "priority"})
	ActiveTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taco",
		Name:      "active_transfers",
		Help:      "Number of in-progress file downloads.",
	})
)

func init() {
	prometheus.MustRegister(BytesSent, BytesReceived, QueueDepth, ActiveTransfers)
}
