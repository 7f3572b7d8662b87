// Package metrics tracks validation-run performance using lock-free atomic
// operations, recording per-record runs and per-node executions.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates counts and timings across every record a Manager
// validates. All methods are safe for concurrent use.
type Metrics struct {
	recordsTotal   atomic.Uint64
	recordsClean   atomic.Uint64
	recordTimeTotal atomic.Uint64
	recordTimeMin   atomic.Uint64
	recordTimeMax   atomic.Uint64

	errorsTotal      atomic.Uint64
	abandonedTotal   atomic.Uint64
	timeoutsTotal    atomic.Uint64

	nodeTiming sync.Map // map[string]*nodeMetrics
}

type nodeMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64
	errorsFound atomic.Uint64
}

// New creates a new Metrics instance.
func New() *Metrics {
	m := &Metrics{}
	m.recordTimeMin.Store(^uint64(0))
	return m
}

// RecordRecord records one completed per-record validation run.
func (m *Metrics) RecordRecord(duration time.Duration, clean bool) {
	m.recordsTotal.Add(1)
	if clean {
		m.recordsClean.Add(1)
	}

	ns := uint64(duration.Nanoseconds())
	m.recordTimeTotal.Add(ns)

	for {
		old := m.recordTimeMin.Load()
		if ns >= old {
			break
		}
		if m.recordTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.recordTimeMax.Load()
		if ns <= old {
			break
		}
		if m.recordTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordNode records one validator node's execution against one record.
func (m *Metrics) RecordNode(name string, duration time.Duration, errorsFound int) {
	nm := m.getOrCreateNodeMetrics(name)
	nm.invocations.Add(1)
	nm.totalTime.Add(uint64(duration.Nanoseconds()))
	nm.errorsFound.Add(uint64(errorsFound))
}

// RecordError records a single accumulated validation error.
func (m *Metrics) RecordError() { m.errorsTotal.Add(1) }

// RecordAbandoned records a node abandoned due to a failed dependency.
func (m *Metrics) RecordAbandoned() { m.abandonedTotal.Add(1) }

// RecordTimeout records a node execution that hit its timeout.
func (m *Metrics) RecordTimeout() { m.timeoutsTotal.Add(1) }

func (m *Metrics) getOrCreateNodeMetrics(name string) *nodeMetrics {
	if v, ok := m.nodeTiming.Load(name); ok {
		return v.(*nodeMetrics)
	}
	nm := &nodeMetrics{}
	actual, _ := m.nodeTiming.LoadOrStore(name, nm)
	return actual.(*nodeMetrics)
}

// RecordsTotal returns the total number of records validated.
func (m *Metrics) RecordsTotal() uint64 { return m.recordsTotal.Load() }

// RecordsClean returns the number of records with zero errors.
func (m *Metrics) RecordsClean() uint64 { return m.recordsClean.Load() }

// CleanRate returns the fraction of records with zero errors (0.0 to 1.0).
func (m *Metrics) CleanRate() float64 {
	total := m.recordsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.recordsClean.Load()) / float64(total)
}

// AverageRecordTime returns the average per-record run duration.
func (m *Metrics) AverageRecordTime() time.Duration {
	total := m.recordsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.recordTimeTotal.Load() / total)
}

// ErrorsTotal returns the total accumulated validation errors.
func (m *Metrics) ErrorsTotal() uint64 { return m.errorsTotal.Load() }

// AbandonedTotal returns the total nodes abandoned due to failed dependencies.
func (m *Metrics) AbandonedTotal() uint64 { return m.abandonedTotal.Load() }

// TimeoutsTotal returns the total node executions that timed out.
func (m *Metrics) TimeoutsTotal() uint64 { return m.timeoutsTotal.Load() }

// NodeStats reports statistics for a single named validator node.
type NodeStats struct {
	Name        string
	Invocations uint64
	TotalTime   time.Duration
	AvgTime     time.Duration
	ErrorsFound uint64
}

// NodeStats returns statistics for a specific validator node.
func (m *Metrics) NodeStats(name string) (NodeStats, bool) {
	v, ok := m.nodeTiming.Load(name)
	if !ok {
		return NodeStats{Name: name}, false
	}
	return nodeStatsOf(name, v.(*nodeMetrics)), true
}

// AllNodeStats returns statistics for every validator node seen so far.
func (m *Metrics) AllNodeStats() []NodeStats {
	var stats []NodeStats
	m.nodeTiming.Range(func(key, value any) bool {
		stats = append(stats, nodeStatsOf(key.(string), value.(*nodeMetrics)))
		return true
	})
	return stats
}

func nodeStatsOf(name string, nm *nodeMetrics) NodeStats {
	invocations := nm.invocations.Load()
	totalTime := nm.totalTime.Load()
	var avg time.Duration
	if invocations > 0 {
		avg = time.Duration(totalTime / invocations)
	}
	return NodeStats{
		Name:        name,
		Invocations: invocations,
		TotalTime:   time.Duration(totalTime),
		AvgTime:     avg,
		ErrorsFound: nm.errorsFound.Load(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.recordsTotal.Store(0)
	m.recordsClean.Store(0)
	m.recordTimeTotal.Store(0)
	m.recordTimeMin.Store(^uint64(0))
	m.recordTimeMax.Store(0)
	m.errorsTotal.Store(0)
	m.abandonedTotal.Store(0)
	m.timeoutsTotal.Store(0)
	m.nodeTiming.Range(func(key, _ any) bool {
		m.nodeTiming.Delete(key)
		return true
	})
}
