package control_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/control"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := control.NewMetrics(reg)
	require.NoError(t, err)

	m.ReactorPass()
	m.BytesSent(10)
	m.BytesReceived(0)
	m.Pool(3, 2)

	n, err := testutil.GatherAndCount(reg, "hioload_reactor_dispatch_passes_total", "hioload_socket_sent_bytes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = control.NewMetrics(reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *control.Metrics
	assert.NotPanics(t, func() {
		m.ReactorPass()
		m.TimeoutFired()
		m.Pool(1, 1)
		m.ConnectionRefused()
	})
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("server.active", func() any { return 4 })
	dp.RegisterProbe("gone", func() any { return nil })
	dp.UnregisterProbe("gone")

	state := dp.DumpState()
	assert.Equal(t, map[string]any{"server.active": 4}, state)
}
