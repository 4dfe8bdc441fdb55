package control_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/control"
)

func TestLoggerDoesNotPanic(t *testing.T) {
	l := control.NewLogger(slog.LevelInfo)
	l.Info("started", "addr", "127.0.0.1:0")
	l.With("component", "tcp").Warn("slow session", "id", "abc")
	l.Error("boom")
}

func TestConfigStoreLoadsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 4\npolling: false\n"), 0o644))

	cs, err := control.LoadConfigStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	require.Equal(t, 4, cs.Options().WorkerCount)

	reloaded := make(chan api.Options, 1)
	cs.OnReload(func(old, new api.Options) { reloaded <- new })

	require.NoError(t, os.WriteFile(path, []byte("worker_count: 8\npolling: false\n"), 0o644))

	select {
	case got := <-reloaded:
		require.Equal(t, 8, got.WorkerCount)
	case <-time.After(2 * time.Second):
		t.Fatal("hot-reload never fired")
	}
}

func TestMetricsRegistryObserveIsMonotonic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetricsRegistry(reg, "test")

	m.Observe(api.Metrics{Sessions: 3, BytesSent: 100, BytesReceived: 50}, 0, 0)
	m.Observe(api.Metrics{Sessions: 2, BytesSent: 150, BytesReceived: 50}, 100, 50)
	m.IncError()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	// Counters accumulate only the delta over the previous totals:
	// sent 100 + (150-100) = 150, received 50 + (50-50) = 50.
	counters := map[string]float64{}
	for _, f := range families {
		if c := f.GetMetric()[0].GetCounter(); c != nil {
			counters[f.GetName()] = c.GetValue()
		}
	}
	require.Equal(t, 150.0, counters["test_bytes_sent_total"])
	require.Equal(t, 50.0, counters["test_bytes_received_total"])
}
