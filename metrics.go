package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter maintained by the engine.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricSessionCreated
	MetricSessionExpired
	MetricLogout
	MetricGuestLogin
	MetricUserCreated
	MetricUserUpdated
	MetricUserDeactivated
	MetricUserDeleted
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricPermissionDenied
	MetricRemoteSuccess
	MetricRemoteFallback
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// Metrics is a fixed set of lock-free counters plus a latency
// histogram for session validation. A nil *Metrics is a valid no-op
// receiver.
type Metrics struct {
	counters   [metricIDCount]paddedCounter
	histograms [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every non-zero metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every non-zero counter and histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64),
		Histograms: make(map[MetricID][]uint64),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if v := atomic.LoadUint64(&m.counters[id].value); v != 0 {
			snap.Counters[id] = v
		}
	}
	var buckets []uint64
	for b := 0; b < histBucketCount; b++ {
		v := atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[b])
		if v != 0 && buckets == nil {
			buckets = make([]uint64, histBucketCount)
		}
		if buckets != nil {
			buckets[b] = v
		}
	}
	if buckets != nil {
		snap.Histograms[MetricValidateLatency] = buckets
	}
	return snap
}

// bucketIndex maps a validation latency to its histogram bucket:
// <100µs, <250µs, <500µs, <1ms, <5ms, <25ms, <100ms, rest.
func bucketIndex(d time.Duration) int {
	switch {
	case d < 100*time.Microsecond:
		return 0
	case d < 250*time.Microsecond:
		return 1
	case d < 500*time.Microsecond:
		return 2
	case d < time.Millisecond:
		return 3
	case d < 5*time.Millisecond:
		return 4
	case d < 25*time.Millisecond:
		return 5
	case d < 100*time.Millisecond:
		return 6
	default:
		return 7
	}
}
