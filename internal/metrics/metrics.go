package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the booking engine. A nil *Metrics is valid
// and records nothing, so callers never need to check.
type Metrics struct {
	bookingCreate *prometheus.CounterVec
	lockWait      prometheus.Histogram
	transitions   *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg. With namespace "booking" the series are
// booking_create_total, booking_lock_wait_seconds and so on.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		bookingCreate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "create_total",
			Help:      "Booking creation attempts by outcome.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the staff+day serialization lock.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status transition calls by target status and whether anything changed.",
		}, []string{"target", "changed"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settle calls by whether a ledger entry already existed.",
		}, []string{"already_settled"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.bookingCreate,
		m.lockWait,
		m.transitions,
		m.settlements,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) BookingCreate(outcome string) {
	if m == nil {
		return
	}
	m.bookingCreate.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) Transition(target string, changed bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(target, strconv.FormatBool(changed)).Inc()
}

func (m *Metrics) Settlement(alreadySettled bool) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(strconv.FormatBool(alreadySettled)).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
