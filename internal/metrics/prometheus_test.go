package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCustomMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitCustomMetrics(reg)
	// A second registration only logs.
	InitCustomMetrics(reg)
	InitCustomMetrics(nil)

	before := testutil.ToFloat64(RateLookupsTotal.WithLabelValues("cache"))
	RateLookupsTotal.WithLabelValues("cache").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RateLookupsTotal.WithLabelValues("cache")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"fxapi_tokens_created_total",
		"fxapi_refresh_rejected_total",
		"fxapi_logins_failure_total",
		"fxapi_conversions_created_total",
		"fxapi_rate_lookups_total",
	} {
		assert.True(t, names[want], want)
	}
}
