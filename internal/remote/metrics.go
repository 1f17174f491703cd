package remote

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of the calls one Client made to the PRISM API.
type Metrics struct {
	Calls     int64 `json:"calls"`
	Errors    int64 `json:"errors"`
	LatencyNs int64 `json:"-"`
}

type callCounters struct {
	calls     atomic.Int64
	errors    atomic.Int64
	latencyNs atomic.Int64
}

func (m *callCounters) record(duration time.Duration, err error) {
	m.calls.Add(1)
	m.latencyNs.Add(duration.Nanoseconds())
	if err != nil {
		m.errors.Add(1)
	}
}

// Metrics returns the client's call counters.
func (c *Client) Metrics() Metrics {
	return Metrics{
		Calls:     c.counters.calls.Load(),
		Errors:    c.counters.errors.Load(),
		LatencyNs: c.counters.latencyNs.Load(),
	}
}

// AverageLatency returns the average latency in milliseconds
func (m Metrics) AverageLatency() float64 {
	if m.Calls == 0 {
		return 0
	}
	return float64(m.LatencyNs) / float64(m.Calls) / 1e6
}

// ErrorRate returns the error rate as a percentage
func (m Metrics) ErrorRate() float64 {
	if m.Calls == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Calls) * 100
}
