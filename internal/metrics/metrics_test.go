package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.CyclesTotal.WithLabelValues("ok").Inc()
	m.CyclesTotal.WithLabelValues("error").Inc()
	m.RulesetSize.Set(42)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.RulesetSize))

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "proxfw_reconcile_cycles_total")
	assert.Contains(t, names, "proxfw_ruleset_commands")
}
