package attachments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdesk"

var (
	storedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attachments",
			Name:      "stored_total",
			Help:      "Total attachment files written to the store",
		},
	)

	sweptFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attachments",
			Name:      "swept_total",
			Help:      "Total orphaned attachment files removed by the sweeper",
		},
	)
)

// recordStored records a stored attachment metric.
func recordStored() {
	storedFiles.Inc()
}

// recordSwept records removed orphan files.
func recordSwept(count int) {
	sweptFiles.Add(float64(count))
}
