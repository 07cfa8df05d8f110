package zoned

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-zoned/internal/action"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a zoned device
type Metrics struct {
	// Report counters
	ReportOps        atomic.Uint64 // Reports issued
	ReportErrors     atomic.Uint64 // Reports that failed (build, channel or decode)
	ZonesDecoded     atomic.Uint64 // Descriptors returned to callers
	Truncations      atomic.Uint64 // Reports whose stated count exceeded the buffer
	BigEndianReports atomic.Uint64 // Legacy reports detected as big-endian
	NativeReports    atomic.Uint64 // Legacy reports detected as native little-endian

	// Action counters. ActionOps is indexed by action code and counts valid
	// actions only; ActionAttempts counts every call, invalid ones included.
	ActionOps      [action.Reset + 1]atomic.Uint64
	ActionAttempts atomic.Uint64
	ActionErrors   atomic.Uint64

	// Superblock probes
	ProbeOps         atomic.Uint64
	SuperblocksFound atomic.Uint64
	ProbeErrors      atomic.Uint64

	// Channel failures, across all operations
	ChannelErrors atomic.Uint64

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative operation latency in nanoseconds
	OpCount        atomic.Uint64 // Total operations (for average latency calculation)

	// Latency histogram buckets (cumulative)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // Creation timestamp (UnixNano)
	StopTime  atomic.Int64 // Close timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ReportOutcome summarizes one report for metrics
type ReportOutcome struct {
	Zones     int
	Truncated bool
	Legacy    bool
	BigEndian bool
}

// RecordReport records a zone report
func (m *Metrics) RecordReport(out ReportOutcome, latencyNs uint64, success bool) {
	m.ReportOps.Add(1)
	if !success {
		m.ReportErrors.Add(1)
	} else {
		m.ZonesDecoded.Add(uint64(out.Zones))
		if out.Truncated {
			m.Truncations.Add(1)
		}
		if out.Legacy {
			if out.BigEndian {
				m.BigEndianReports.Add(1)
			} else {
				m.NativeReports.Add(1)
			}
		}
	}
	m.recordLatency(latencyNs)
}

// RecordAction records a zone action
func (m *Metrics) RecordAction(a action.Action, latencyNs uint64, success bool) {
	m.ActionAttempts.Add(1)
	if a.Valid() {
		m.ActionOps[a].Add(1)
	}
	if !success {
		m.ActionErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordProbe records a superblock probe
func (m *Metrics) RecordProbe(found bool, latencyNs uint64, success bool) {
	m.ProbeOps.Add(1)
	if !success {
		m.ProbeErrors.Add(1)
	} else if found {
		m.SuperblocksFound.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordChannelError counts a failure reported by the device channel
func (m *Metrics) RecordChannelError() {
	m.ChannelErrors.Add(1)
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as closed
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	ReportOps        uint64
	ReportErrors     uint64
	ZonesDecoded     uint64
	Truncations      uint64
	BigEndianReports uint64
	NativeReports    uint64

	OpenOps        uint64
	CloseOps       uint64
	FinishOps      uint64
	ResetOps       uint64
	ActionAttempts uint64
	ActionErrors   uint64

	ProbeOps         uint64
	SuperblocksFound uint64
	ProbeErrors      uint64

	ChannelErrors uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	AvgZones  float64 // descriptors per successful report
	ErrorRate float64 // percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	// Error counters are loaded before the op counters they belong to.
	// Ops are incremented first, so a racing update can never leave more
	// errors than ops in the snapshot.
	reportErrors := m.ReportErrors.Load()
	actionErrors := m.ActionErrors.Load()
	probeErrors := m.ProbeErrors.Load()

	snap := MetricsSnapshot{
		ReportOps:        m.ReportOps.Load(),
		ReportErrors:     reportErrors,
		ZonesDecoded:     m.ZonesDecoded.Load(),
		Truncations:      m.Truncations.Load(),
		BigEndianReports: m.BigEndianReports.Load(),
		NativeReports:    m.NativeReports.Load(),
		OpenOps:          m.ActionOps[action.Open].Load(),
		CloseOps:         m.ActionOps[action.Close].Load(),
		FinishOps:        m.ActionOps[action.Finish].Load(),
		ResetOps:         m.ActionOps[action.Reset].Load(),
		ActionAttempts:   m.ActionAttempts.Load(),
		ActionErrors:     actionErrors,
		ProbeOps:         m.ProbeOps.Load(),
		SuperblocksFound: m.SuperblocksFound.Load(),
		ProbeErrors:      probeErrors,
		ChannelErrors:    m.ChannelErrors.Load(),
	}

	snap.TotalOps = snap.ReportOps + snap.ActionAttempts + snap.ProbeOps

	if snap.ReportOps > snap.ReportErrors {
		ok := snap.ReportOps - snap.ReportErrors
		snap.AvgZones = float64(snap.ZonesDecoded) / float64(ok)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	totalErrors := min(snap.ReportErrors+snap.ActionErrors+snap.ProbeErrors, snap.TotalOps)
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.ReportOps, &m.ReportErrors, &m.ZonesDecoded, &m.Truncations,
		&m.BigEndianReports, &m.NativeReports, &m.ActionAttempts, &m.ActionErrors,
		&m.ProbeOps, &m.SuperblocksFound, &m.ProbeErrors, &m.ChannelErrors,
		&m.TotalLatencyNs, &m.OpCount,
	} {
		c.Store(0)
	}
	for i := range m.ActionOps {
		m.ActionOps[i].Store(0)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer interface allows pluggable metrics collection
type Observer interface {
	// ObserveReport is called once per ReportZones call
	ObserveReport(out ReportOutcome, latencyNs uint64, success bool)

	// ObserveAction is called once per zone action
	ObserveAction(a action.Action, latencyNs uint64, success bool)

	// ObserveProbe is called once per superblock probe
	ObserveProbe(found bool, latencyNs uint64, success bool)

	// ObserveChannelError is called when the device channel fails
	ObserveChannelError()
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveReport(ReportOutcome, uint64, bool) {}
func (NoOpObserver) ObserveAction(action.Action, uint64, bool) {}
func (NoOpObserver) ObserveProbe(bool, uint64, bool)           {}
func (NoOpObserver) ObserveChannelError()                      {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveReport(out ReportOutcome, latencyNs uint64, success bool) {
	o.metrics.RecordReport(out, latencyNs, success)
}

func (o *MetricsObserver) ObserveAction(a action.Action, latencyNs uint64, success bool) {
	o.metrics.RecordAction(a, latencyNs, success)
}

func (o *MetricsObserver) ObserveProbe(found bool, latencyNs uint64, success bool) {
	o.metrics.RecordProbe(found, latencyNs, success)
}

func (o *MetricsObserver) ObserveChannelError() {
	o.metrics.RecordChannelError()
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
