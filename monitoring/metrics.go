package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campus-events/internal/store"
	"campus-events/models"
)

// Monitor records engine metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	attendees         *prometheus.GaugeVec
	capacityRejects   *prometheus.CounterVec
	eventsByStatus    *prometheus.GaugeVec
	goroutines        prometheus.Gauge
}

// NewMonitor registers the engine metrics on reg; nil means the default
// registerer.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Monitor{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_engine_operations_total",
				Help: "Engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campus_engine_operation_duration_seconds",
				Help:    "Duration of engine operations",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"operation"},
		),
		attendees: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campus_event_attendees",
				Help: "Registered attendees per event",
			},
			[]string{"event_id"},
		),
		capacityRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_capacity_rejections_total",
				Help: "Registrations refused because an event or ticket tier was full",
			},
			[]string{"event_id"},
		),
		eventsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campus_events",
				Help: "Stored events per lifecycle status",
			},
			[]string{"status"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "campus_active_goroutines",
				Help: "Current number of active goroutines",
			},
		),
	}
}

// TrackOperation counts one engine call; outcome is "ok" or an error kind.
func (m *Monitor) TrackOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Monitor) TrackAttendees(eventID string, count int) {
	if m == nil {
		return
	}
	m.attendees.WithLabelValues(eventID).Set(float64(count))
}

func (m *Monitor) TrackCapacityRejection(eventID string) {
	if m == nil {
		return
	}
	m.capacityRejects.WithLabelValues(eventID).Inc()
}

// Run samples the store every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, events store.Store, interval time.Duration) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.collect(ctx, events)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect(ctx context.Context, events store.Store) {
	m.goroutines.Set(float64(runtime.NumGoroutine()))

	all, err := events.ListEvents(ctx, store.EventQuery{})
	if err != nil {
		slog.Error("Failed to collect event metrics", "error", err)
		return
	}
	counts := map[models.EventStatus]int{
		models.EventStatusDraft:     0,
		models.EventStatusPending:   0,
		models.EventStatusApproved:  0,
		models.EventStatusRejected:  0,
		models.EventStatusCancelled: 0,
	}
	for _, ev := range all {
		counts[ev.Status]++
		if ev.Status == models.EventStatusApproved {
			m.attendees.WithLabelValues(ev.ID).Set(float64(ev.ActiveAttendees()))
		}
	}
	for st, n := range counts {
		m.eventsByStatus.WithLabelValues(string(st)).Set(float64(n))
	}
	slog.Debug("Collected event metrics", "events", len(all))
}
