// Package netmetrics implements engine.Metrics with Prometheus collectors:
// a set of named counters/gauges registered once at construction against a
// caller-supplied prometheus.Registerer.
package netmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a prometheus-backed implementation of engine.Metrics.
type Metrics struct {
	stalls           prometheus.Counter
	rollbackFrames   prometheus.Histogram
	crcMismatches    prometheus.Counter
	connectedPlayers prometheus.Gauge
	bytesSent        prometheus.Counter
	bytesRecv        prometheus.Counter
}

// New creates and registers the netplay collectors against reg. Passing
// prometheus.NewRegistry() keeps them isolated from the default registry,
// which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netplay",
			Name:      "stalls_total",
			Help:      "Number of times PostFrame had to stall waiting for network input.",
		}),
		rollbackFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netplay",
			Name:      "rollback_frames",
			Help:      "Number of frames resimulated per rollback.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		crcMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netplay",
			Name:      "crc_mismatches_total",
			Help:      "Number of CRC audits that disagreed with a peer.",
		}),
		connectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netplay",
			Name:      "connected_players",
			Help:      "Current number of players occupying a controller port.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netplay",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to peer sockets.",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netplay",
			Name:      "bytes_recv_total",
			Help:      "Total bytes read from peer sockets.",
		}),
	}

	reg.MustRegister(
		m.stalls,
		m.rollbackFrames,
		m.crcMismatches,
		m.connectedPlayers,
		m.bytesSent,
		m.bytesRecv,
	)

	return m
}

func (m *Metrics) ObserveStall()                    { m.stalls.Inc() }
func (m *Metrics) ObserveRollback(frames uint32)     { m.rollbackFrames.Observe(float64(frames)) }
func (m *Metrics) ObserveCRCMismatch()               { m.crcMismatches.Inc() }
func (m *Metrics) SetConnectedPlayers(n int)         { m.connectedPlayers.Set(float64(n)) }
func (m *Metrics) AddBytesSent(n int)                { m.bytesSent.Add(float64(n)) }
func (m *Metrics) AddBytesRecv(n int)                { m.bytesRecv.Add(float64(n)) }
