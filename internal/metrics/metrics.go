// Package metrics exposes Prometheus collectors for token lifecycle and
// HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshAttempts counts outbound refresh exchanges by provider and
	// outcome ("success", "provider_error", "storage_error").
	RefreshAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokend_refresh_attempts_total",
		Help: "Total number of refresh-token exchanges.",
	}, []string{"provider", "outcome"})

	// TokenServes counts GetValidToken results by provider and path
	// ("cached" for the no-network fast path, "refreshed" after an
	// exchange).
	TokenServes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokend_token_serves_total",
		Help: "Total number of tokens served to callers.",
	}, []string{"provider", "path"})

	// RateLimited counts denied authorization-initiation requests.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokend_rate_limited_total",
		Help: "Total number of requests denied by the rate limiter.",
	})
)
