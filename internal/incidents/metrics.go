package incidents

import (
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdesk"

var (
	incidentsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "total",
			Help:      "Number of incidents by status",
		},
		[]string{"status"},
	)

	csvExports = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "csv_exports_total",
			Help:      "Total CSV exports served",
		},
	)
)

// RecordStatusCounts updates the incidents-by-status gauge. Statuses missing
// from counts are set to zero.
func RecordStatusCounts(counts map[domain.Status]int) {
	for _, status := range domain.Statuses {
		incidentsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// recordExport records a served CSV export.
func recordExport() {
	csvExports.Inc()
}
