package breaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// windowBucket is one time slice of the sliding window, counting
// successes, failures and slow calls observed during that slice.
type windowBucket struct {
	timestamp  time.Time
	success    uint64
	failure    uint64
	slow       uint64
	durationNs uint64
	calls      uint64
}

// SlidingWindow is a fixed-capacity, bucketed ring of recent call
// outcomes, with monotonic-clock skew protection: if wall-clock time
// ever appears to move backward between rotations, the window resets
// rather than risk negative bucket ages.
type SlidingWindow struct {
	mu           sync.RWMutex
	buckets      []windowBucket
	windowSize   time.Duration
	bucketSize   time.Duration
	currentIdx   int
	lastRotation time.Time
}

// NewSlidingWindow builds a window spanning windowSize split into
// bucketCount equal buckets.
func NewSlidingWindow(windowSize time.Duration, bucketCount int) *SlidingWindow {
	if bucketCount <= 0 {
		bucketCount = 10
	}
	if windowSize <= 0 {
		windowSize = 60 * time.Second
	}
	now := time.Now()
	buckets := make([]windowBucket, bucketCount)
	for i := range buckets {
		buckets[i].timestamp = now
	}
	return &SlidingWindow{
		buckets:      buckets,
		windowSize:   windowSize,
		bucketSize:   windowSize / time.Duration(bucketCount),
		lastRotation: now,
	}
}

func (sw *SlidingWindow) rotate() {
	now := time.Now()
	elapsed := now.Sub(sw.lastRotation)
	if elapsed < 0 {
		sw.resetLocked(now)
		return
	}
	if elapsed < sw.bucketSize {
		return
	}
	toRotate := int(elapsed / sw.bucketSize)
	if toRotate > len(sw.buckets) {
		toRotate = len(sw.buckets)
	}
	for i := 0; i < toRotate; i++ {
		sw.currentIdx = (sw.currentIdx + 1) % len(sw.buckets)
		sw.buckets[sw.currentIdx] = windowBucket{timestamp: now}
	}
	sw.lastRotation = now
}

func (sw *SlidingWindow) resetLocked(now time.Time) {
	for i := range sw.buckets {
		sw.buckets[i] = windowBucket{timestamp: now}
	}
	sw.currentIdx = 0
	sw.lastRotation = now
}

// RecordSuccess records a successful call that took duration, marking
// it slow when it exceeds slowThreshold.
func (sw *SlidingWindow) RecordSuccess(duration, slowThreshold time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	atomic.AddUint64(&sw.buckets[sw.currentIdx].success, 1)
	atomic.AddUint64(&sw.buckets[sw.currentIdx].calls, 1)
	atomic.AddUint64(&sw.buckets[sw.currentIdx].durationNs, uint64(duration))
	if slowThreshold > 0 && duration > slowThreshold {
		atomic.AddUint64(&sw.buckets[sw.currentIdx].slow, 1)
	}
}

// RecordFailure records a failed call that took duration.
func (sw *SlidingWindow) RecordFailure(duration, slowThreshold time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	atomic.AddUint64(&sw.buckets[sw.currentIdx].failure, 1)
	atomic.AddUint64(&sw.buckets[sw.currentIdx].calls, 1)
	atomic.AddUint64(&sw.buckets[sw.currentIdx].durationNs, uint64(duration))
	if slowThreshold > 0 && duration > slowThreshold {
		atomic.AddUint64(&sw.buckets[sw.currentIdx].slow, 1)
	}
}

// Counts returns success, failure and slow-call totals across the
// window's live buckets.
func (sw *SlidingWindow) Counts() (success, failure, slow uint64) {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	cutoff := time.Now().Add(-sw.windowSize)
	for i := range sw.buckets {
		b := &sw.buckets[i]
		if b.timestamp.After(cutoff) {
			success += atomic.LoadUint64(&b.success)
			failure += atomic.LoadUint64(&b.failure)
			slow += atomic.LoadUint64(&b.slow)
		}
	}
	return success, failure, slow
}

// Total returns the number of calls observed in the window.
func (sw *SlidingWindow) Total() uint64 {
	success, failure, _ := sw.Counts()
	return success + failure
}

// ErrorRate returns failure/total, or 0 when the window is empty.
func (sw *SlidingWindow) ErrorRate() float64 {
	success, failure, _ := sw.Counts()
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(failure) / float64(total)
}

// SlowCallRate returns slow/total, or 0 when the window is empty.
func (sw *SlidingWindow) SlowCallRate() float64 {
	success, failure, slow := sw.Counts()
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(slow) / float64(total)
}

// MeanLatency returns the average call duration across the window's
// live buckets, or 0 when the window is empty.
func (sw *SlidingWindow) MeanLatency() time.Duration {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	cutoff := time.Now().Add(-sw.windowSize)
	var totalNs, calls uint64
	for i := range sw.buckets {
		b := &sw.buckets[i]
		if b.timestamp.After(cutoff) {
			totalNs += atomic.LoadUint64(&b.durationNs)
			calls += atomic.LoadUint64(&b.calls)
		}
	}
	if calls == 0 {
		return 0
	}
	return time.Duration(totalNs / calls)
}

// Reset clears every bucket.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.resetLocked(time.Now())
}
