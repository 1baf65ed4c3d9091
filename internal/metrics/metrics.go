package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estateadmin",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "estateadmin",
			Name:      "reservations_created_total",
			Help:      "Reservations successfully created.",
		},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estateadmin",
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by target status.",
		},
		[]string{"to"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "estateadmin",
			Name:      "slot_conflicts_total",
			Help:      "Rejected operations due to slot collisions (create or accept).",
		},
	)

	notificationsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "estateadmin",
			Name:      "notifications_emitted_total",
			Help:      "Notification records written.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			reservationTransitions,
			slotConflicts,
			notificationsEmitted,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncTransition(to string) {
	reservationTransitions.WithLabelValues(to).Inc()
}

func IncSlotConflict() {
	slotConflicts.Inc()
}

func AddNotificationsEmitted(n int) {
	notificationsEmitted.Add(float64(n))
}
