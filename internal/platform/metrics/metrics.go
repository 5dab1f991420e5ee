package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	RegistrationsTotal *prometheus.CounterVec
	ReviewsTotal       *prometheus.CounterVec
	LookupsTotal       *prometheus.CounterVec
	RateLimitRejected  prometheus.Counter
	EmailsSentTotal    *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_registrations_total",
			Help: "Registration requests submitted, by entity type.",
		}, []string{"entity"}),
		ReviewsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_reviews_total",
			Help: "Admin review decisions, by entity type and decision.",
		}, []string{"entity", "decision"}),
		LookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_lookups_total",
			Help: "Lookup API calls, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RateLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_rate_limit_rejected_total",
			Help: "Lookup API requests rejected by the rate limiter.",
		}),
		EmailsSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_emails_sent_total",
			Help: "Notification emails, by template and outcome.",
		}, []string{"template", "outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// RecordRegistration increments the registration counter for an entity type.
func (m *Metrics) RecordRegistration(entity string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(entity).Inc()
}

// RecordReview increments the review counter for a decision.
func (m *Metrics) RecordReview(entity, decision string) {
	if m == nil {
		return
	}
	m.ReviewsTotal.WithLabelValues(entity, decision).Inc()
}

// RecordLookup increments the lookup counter.
func (m *Metrics) RecordLookup(kind, outcome string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRateLimitRejection increments the limiter rejection counter.
func (m *Metrics) RecordRateLimitRejection() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}

// RecordEmail increments the email counter.
func (m *Metrics) RecordEmail(template, outcome string) {
	if m == nil {
		return
	}
	m.EmailsSentTotal.WithLabelValues(template, outcome).Inc()
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}
