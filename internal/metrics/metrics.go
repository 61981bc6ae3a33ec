// Package metrics exposes Prometheus counters for sign-in activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultExpired  = "expired"
	ResultUsed     = "used"
	ResultRejected = "rejected"
	ResultMiss     = "miss"
	ResultError    = "error"
)

// Auth holds the sign-in counters on a private registry.
type Auth struct {
	registry          *prometheus.Registry
	linksIssued       prometheus.Counter
	linkVerifications *prometheus.CounterVec
	adminLogins       *prometheus.CounterVec
	bridgeRedemptions *prometheus.CounterVec
	sessionsIssued    *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

func NewAuth() *Auth {
	m := &Auth{
		registry: prometheus.NewRegistry(),
		linksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "auth",
			Name:      "links_issued_total",
			Help:      "One-time login links issued.",
		}),
		linkVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "auth",
			Name:      "link_verifications_total",
			Help:      "One-time login link redemptions by result.",
		}, []string{"result"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "auth",
			Name:      "admin_logins_total",
			Help:      "Administrator credential logins by result.",
		}, []string{"result"}),
		bridgeRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "auth",
			Name:      "bridge_redemptions_total",
			Help:      "Order email sign-in link redemptions by result.",
		}, []string{"result"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Session tokens issued by sign-in method.",
		}, []string{"kind"}),
	}
	m.rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the sign-in rate limiter, by route.",
	}, []string{"route"})
	m.registry.MustRegister(m.linksIssued, m.linkVerifications, m.adminLogins, m.bridgeRedemptions, m.sessionsIssued, m.rateLimited)
	return m
}

func (m *Auth) LinkIssued() {
	m.linksIssued.Inc()
}

func (m *Auth) LinkVerified(result string) {
	m.linkVerifications.WithLabelValues(result).Inc()
}

func (m *Auth) AdminLogin(result string) {
	m.adminLogins.WithLabelValues(result).Inc()
}

func (m *Auth) BridgeRedeemed(result string) {
	m.bridgeRedemptions.WithLabelValues(result).Inc()
}

// SessionIssued counts a session minted via kind ("link", "admin", "bridge").
func (m *Auth) SessionIssued(kind string) {
	m.sessionsIssued.WithLabelValues(kind).Inc()
}

func (m *Auth) RateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Auth) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Auth) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
