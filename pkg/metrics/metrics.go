// Package metrics exposes Prometheus counters for prefetch parsing.
//
// The Recorder plugs into the parser twice: as a ParseMetrics observer
// for parse outcomes, and as a notification sink counting anomalies by
// category. A nil Recorder is valid everywhere and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ForensicRS/frnsc-prefetch/pkg/notify"
)

// Recorder holds the parsing counters.
type Recorder struct {
	filesParsed   prometheus.Counter
	parseFailures prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewRecorder creates a Recorder and registers its collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		filesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frnsc_prefetch",
			Name:      "files_parsed_total",
			Help:      "Prefetch files parsed successfully.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "frnsc_prefetch",
			Name:      "parse_failures_total",
			Help:      "Prefetch files that failed to parse.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frnsc_prefetch",
			Name:      "notifications_total",
			Help:      "Advisory notifications emitted during parsing.",
		}, []string{"type"}),
	}
	reg.MustRegister(r.filesParsed, r.parseFailures, r.notifications)
	return r
}

// ObserveParsed counts one successfully parsed file.
func (r *Recorder) ObserveParsed() {
	if r == nil {
		return
	}
	r.filesParsed.Inc()
}

// ObserveFailed counts one failed parse.
func (r *Recorder) ObserveFailed() {
	if r == nil {
		return
	}
	r.parseFailures.Inc()
}

// Notify implements notify.Sink, counting notifications by category.
func (r *Recorder) Notify(n notify.Notification) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(n.Type.String()).Inc()
}
