package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCollectors(reg)
	require.Panics(t, func() { RegisterCollectors(reg) }, "double registration must fail loudly")

	before := testutil.ToFloat64(Logouts.WithLabelValues("test"))
	Logouts.WithLabelValues("test").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Logouts.WithLabelValues("test")))

	n, err := testutil.GatherAndCount(reg, "meowchat_logouts_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
