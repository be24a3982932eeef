package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	CredentialRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "credential_refresh_total", Help: "Credential refresh network calls by result."},
		[]string{"result"},
	)
	RequestRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "request_retries_total", Help: "Requests re-issued after a successful credential refresh."},
	)
	Logouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "logouts_total", Help: "Local session teardowns by cause."},
		[]string{"cause"},
	)
	LoginRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "login_redirects_total", Help: "Navigations to the login entry point (one per failure episode)."},
	)
	MembershipLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "membership_lookups_total", Help: "Membership checks by outcome (hit, miss, shared, skipped)."},
		[]string{"outcome"},
	)
	ScheduledRefreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "meowchat", Name: "scheduled_refresh_failures_total", Help: "Proactive refreshes that failed."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(CredentialRefreshes)
	reg.MustRegister(RequestRetries)
	reg.MustRegister(Logouts)
	reg.MustRegister(LoginRedirects)
	reg.MustRegister(MembershipLookups)
	reg.MustRegister(ScheduledRefreshFailures)
}
