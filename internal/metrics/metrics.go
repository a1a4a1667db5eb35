// Package metrics collects and exposes Prometheus metrics for the auth workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collections/internal/profiles"
)

// Callback outcomes recorded by RecordCallback.
const (
	CallbackSuccess        = "success"
	CallbackOAuthError     = "oauth_error"
	CallbackExchangeFailed = "exchange_failed"
	CallbackNoCode         = "no_code"
	CallbackUnexpected     = "unexpected_error"
)

// Recorder is the metrics surface used by the HTTP layer.
type Recorder interface {
	RecordCallback(outcome string)
	RecordSessionRefreshed()
	RecordSessionRejected()
	RecordRateLimited(scope string)
}

// Collector is the Prometheus-backed implementation of Recorder and
// profiles.Recorder.
type Collector struct {
	callbacks   *prometheus.CounterVec
	refreshed   prometheus.Counter
	rejected    prometheus.Counter
	provisions  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collections_auth_callback_total",
			Help: "OAuth callback requests by outcome.",
		}, []string{"outcome"}),
		refreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collections_session_refreshed_total",
			Help: "Sessions whose tokens were refreshed while serving a request.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collections_session_rejected_total",
			Help: "Stored sessions rejected by the identity provider.",
		}),
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collections_profile_provision_total",
			Help: "Profile provisioning attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collections_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
	}

	reg.MustRegister(
		c.callbacks,
		c.refreshed,
		c.rejected,
		c.provisions,
		c.rateLimited,
	)

	return c
}

// RecordCallback counts an OAuth callback outcome.
func (c *Collector) RecordCallback(outcome string) {
	c.callbacks.WithLabelValues(outcome).Inc()
}

// RecordSessionRefreshed counts a token refresh.
func (c *Collector) RecordSessionRefreshed() {
	c.refreshed.Inc()
}

// RecordSessionRejected counts a stored session the provider refused.
func (c *Collector) RecordSessionRejected() {
	c.rejected.Inc()
}

// RecordProvision counts a profile provisioning outcome.
func (c *Collector) RecordProvision(outcome profiles.Outcome) {
	c.provisions.WithLabelValues(string(outcome)).Inc()
}

// RecordRateLimited counts a rejected request.
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordCallback(string)            {}
func (Nop) RecordSessionRefreshed()          {}
func (Nop) RecordSessionRejected()           {}
func (Nop) RecordRateLimited(string)         {}
func (Nop) RecordProvision(profiles.Outcome) {}
