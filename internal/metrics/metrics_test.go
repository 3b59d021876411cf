package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncLookupTimeout_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncLookupTimeout()
	m.IncLookupTimeout()

	var out dto.Metric
	require.NoError(t, m.LookupTimeouts.Write(&out))
	assert.Equal(t, 2.0, out.GetCounter().GetValue())
}

func TestSetPersistenceBacklog_SetsGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetPersistenceBacklog(42)

	var out dto.Metric
	require.NoError(t, m.PersistenceBacklog.Write(&out))
	assert.Equal(t, 42.0, out.GetGauge().GetValue())
}
