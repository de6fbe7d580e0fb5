package server

import (
	"sync/atomic"
	"time"
)

// Metrics holds server runtime metrics
type Metrics struct {
	ConnectionsAccepted atomic.Int64
	ActiveConnections   atomic.Int64
	RequestsTotal       atomic.Int64
	Responses2xx        atomic.Int64
	Errors4xx           atomic.Int64
	Errors5xx           atomic.Int64
	BytesSent           atomic.Int64

	// Latency tracking (simplified - use histogram in production)
	TotalLatencyNs atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a completed response
func (m *Metrics) RecordRequest(statusCode int, duration time.Duration, bytes int64) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())
	m.BytesSent.Add(bytes)

	switch {
	case statusCode >= 200 && statusCode < 300:
		m.Responses2xx.Add(1)
	case statusCode >= 400 && statusCode < 500:
		m.Errors4xx.Add(1)
	case statusCode >= 500:
		m.Errors5xx.Add(1)
	}
}

// AverageLatency returns average request latency
func (m *Metrics) AverageLatency() time.Duration {
	totalReqs := m.RequestsTotal.Load()
	if totalReqs == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyNs.Load() / totalReqs)
}

// MetricsSnapshot is a point-in-time copy of the counters
type MetricsSnapshot struct {
	ConnectionsAccepted int64
	ActiveConnections   int64
	QueuedConnections   int
	Workers             int
	RequestsTotal       int64
	Responses2xx        int64
	Errors4xx           int64
	Errors5xx           int64
	BytesSent           int64
	AverageLatency      time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsAccepted: m.ConnectionsAccepted.Load(),
		ActiveConnections:   m.ActiveConnections.Load(),
		RequestsTotal:       m.RequestsTotal.Load(),
		Responses2xx:        m.Responses2xx.Load(),
		Errors4xx:           m.Errors4xx.Load(),
		Errors5xx:           m.Errors5xx.Load(),
		BytesSent:           m.BytesSent.Load(),
		AverageLatency:      m.AverageLatency(),
	}
}
