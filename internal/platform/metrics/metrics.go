package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	UsersRegistered       prometheus.Counter
	RegistrationsRejected *prometheus.CounterVec
	VerificationRequests  *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
}

// New registers all collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "accounts_users_registered_total",
			Help: "Total number of user accounts created through signup",
		}),
		RegistrationsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_registrations_rejected_total",
			Help: "Signup submissions that did not create an account, by reason",
		}, []string{"reason"}),
		VerificationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_verification_requests_total",
			Help: "Verification email obligations recorded, by outcome",
		}, []string{"outcome"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accounts_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

// IncrementUsersRegistered records a successful signup.
func (m *Metrics) IncrementUsersRegistered() {
	m.UsersRegistered.Inc()
}

// IncrementRejected records a signup that was re-rendered with errors.
// reason is "invalid" for validation failures and "conflict" for uniqueness
// races caught at save time.
func (m *Metrics) IncrementRejected(reason string) {
	m.RegistrationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementVerificationRequest(outcome string) {
	m.VerificationRequests.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the duration of a request started at start.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
