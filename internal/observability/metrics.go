package observability

import (
	"sync/atomic"
)

// MetricsCollector provides hooks for metrics collection over the pipeline's
// stages. Can be implemented to integrate with Prometheus, StatsD, etc.
type MetricsCollector interface {
	IncReceived()
	IncSubmission()
	IncAck()
	IncDLR()
	IncUnknownRoute()
	IncMalformed()
	IncStoreWrite()
	IncStoreError()
	IncReconnect()
}

// InMemoryMetrics is a simple in-memory implementation for testing/demo
type InMemoryMetrics struct {
	Received      atomic.Int64
	Submissions   atomic.Int64
	Acks          atomic.Int64
	DLRs          atomic.Int64
	UnknownRoutes atomic.Int64
	Malformed     atomic.Int64
	StoreWrites   atomic.Int64
	StoreErrors   atomic.Int64
	Reconnects    atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncReceived() {
	m.Received.Add(1)
}

func (m *InMemoryMetrics) IncSubmission() {
	m.Submissions.Add(1)
}

func (m *InMemoryMetrics) IncAck() {
	m.Acks.Add(1)
}

func (m *InMemoryMetrics) IncDLR() {
	m.DLRs.Add(1)
}

func (m *InMemoryMetrics) IncUnknownRoute() {
	m.UnknownRoutes.Add(1)
}

func (m *InMemoryMetrics) IncMalformed() {
	m.Malformed.Add(1)
}

func (m *InMemoryMetrics) IncStoreWrite() {
	m.StoreWrites.Add(1)
}

func (m *InMemoryMetrics) IncStoreError() {
	m.StoreErrors.Add(1)
}

func (m *InMemoryMetrics) IncReconnect() {
	m.Reconnects.Add(1)
}

func (m *InMemoryMetrics) GetReceived() int64 {
	return m.Received.Load()
}

func (m *InMemoryMetrics) GetSubmissions() int64 {
	return m.Submissions.Load()
}

func (m *InMemoryMetrics) GetAcks() int64 {
	return m.Acks.Load()
}

func (m *InMemoryMetrics) GetDLRs() int64 {
	return m.DLRs.Load()
}

func (m *InMemoryMetrics) GetUnknownRoutes() int64 {
	return m.UnknownRoutes.Load()
}

func (m *InMemoryMetrics) GetMalformed() int64 {
	return m.Malformed.Load()
}

func (m *InMemoryMetrics) GetStoreWrites() int64 {
	return m.StoreWrites.Load()
}

func (m *InMemoryMetrics) GetStoreErrors() int64 {
	return m.StoreErrors.Load()
}

func (m *InMemoryMetrics) GetReconnects() int64 {
	return m.Reconnects.Load()
}
