package netmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStall()
	m.ObserveRollback(3)
	m.ObserveCRCMismatch()
	m.SetConnectedPlayers(2)
	m.AddBytesSent(128)
	m.AddBytesRecv(64)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	want := []string{
		"netplay_stalls_total",
		"netplay_rollback_frames",
		"netplay_crc_mismatches_total",
		"netplay_connected_players",
		"netplay_bytes_sent_total",
		"netplay_bytes_recv_total",
	}
	for _, name := range want {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing metric family %q", name)
		}
	}

	gauge := byName["netplay_connected_players"].GetMetric()[0].GetGauge()
	if gauge.GetValue() != 2 {
		t.Errorf("connected_players = %v, want 2", gauge.GetValue())
	}
}
