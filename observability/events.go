package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	journal   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustlend",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events segmented by module.",
			}, []string{"module"}),
			journal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trustlend",
				Subsystem: "events",
				Name:      "journal_writes_total",
				Help:      "Event journal writes by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.journal)
	})
	return eventRegistry
}

// RecordPublished increments the counter for the module prefix of eventType
// ("lending.loan.repaid" counts under "lending").
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	module, _, _ := strings.Cut(strings.TrimSpace(eventType), ".")
	if module == "" {
		module = "unknown"
	}
	m.published.WithLabelValues(module).Inc()
}

func (m *eventMetrics) RecordJournalWrite(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.journal.WithLabelValues(outcome).Inc()
}
