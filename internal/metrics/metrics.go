package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "bookings_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	reschedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "reschedules_total",
			Help:      "Count of reschedule attempts by outcome.",
		},
		[]string{"outcome"},
	)

	autofill = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "autofill_total",
			Help:      "Count of auto-fill requests by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "slot_cache_total",
			Help:      "Slot cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookings, reschedules, autofill, slotCache)
	})
}

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func IncReschedule(outcome string) {
	reschedules.WithLabelValues(outcome).Inc()
}

func IncAutoFill(mode, outcome string) {
	autofill.WithLabelValues(mode, outcome).Inc()
}

func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}
