package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_tokens_created_total",
		Help: "Total number of access tokens created.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_tokens_refreshed_total",
		Help: "Total number of successful refresh token rotations.",
	})
	RefreshRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_refresh_rejected_total",
		Help: "Total number of refresh attempts with an unusable token.",
	})
	LoginSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxapi_logins_success_total",
		Help: "Total number of successful logins.",
	}, []string{"method"})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	UserRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_users_registered_total",
		Help: "Total number of accounts registered.",
	})
	AuditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxapi_audit_events_total",
		Help: "Total number of audit events recorded, by kind.",
	}, []string{"kind"})
	AuditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_audit_failures_total",
		Help: "Total number of audit events that could not be persisted.",
	})
	ConversionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fxapi_conversions_created_total",
		Help: "Total number of conversions created.",
	})
	RateLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxapi_rate_lookups_total",
		Help: "Exchange rate lookups by source (cache, upstream, mock).",
	}, []string{"source"})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"TokensCreatedTotal":      TokensCreatedTotal,
		"TokensRefreshedTotal":    TokensRefreshedTotal,
		"RefreshRejectedTotal":    RefreshRejectedTotal,
		"LoginSuccessTotal":       LoginSuccessTotal,
		"LoginFailureTotal":       LoginFailureTotal,
		"UserRegisteredTotal":     UserRegisteredTotal,
		"AuditEventsTotal":        AuditEventsTotal,
		"AuditFailuresTotal":      AuditFailuresTotal,
		"ConversionsCreatedTotal": ConversionsCreatedTotal,
		"RateLookupsTotal":        RateLookupsTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
