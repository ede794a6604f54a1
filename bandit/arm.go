// Package bandit implements multi-armed bandit selection over a small
// closed set of strategy labels: ε-greedy and UCB algorithms, a
// contextual bias overlay, bounded reward history per arm, and
// export/import of the learned model for cross-restart persistence.
package bandit

import "math"

// DefaultRetrievalArms is the default arm set for retrieval-strategy
// selection.
var DefaultRetrievalArms = []string{
	"fts-heavy", "vector-heavy", "balanced", "recency-focused",
	"effectiveness-focused", "popularity-focused", "semantic-focused",
}

// ringBuffer is a fixed-capacity FIFO of recent rewards for one arm, so
// old, stale experience does not dominate the running mean forever.
type ringBuffer struct {
	values []float64
	cap    int
	next   int
	filled bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer{values: make([]float64, capacity), cap: capacity}
}

func (r *ringBuffer) push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

func (r *ringBuffer) snapshot() []float64 {
	if !r.filled {
		return append([]float64{}, r.values[:r.next]...)
	}
	out := make([]float64, 0, r.cap)
	out = append(out, r.values[r.next:]...)
	out = append(out, r.values[:r.next]...)
	return out
}

func (r *ringBuffer) len() int {
	if r.filled {
		return r.cap
	}
	return r.next
}

func (r *ringBuffer) mean() float64 {
	n := r.len()
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.snapshot() {
		sum += v
	}
	return sum / float64(n)
}

// Arm tracks one bandit arm's trial count, lifetime totals, and a
// bounded window of recent rewards.
type Arm struct {
	Label       string
	Trials      int64
	TotalReward float64
	window      *ringBuffer
}

func newArm(label string, windowSize int) *Arm {
	return &Arm{Label: label, window: newRingBuffer(windowSize)}
}

// update records a new observation for the arm.
func (a *Arm) update(reward float64) {
	a.Trials++
	a.TotalReward += reward
	a.window.push(reward)
}

// MeanReward returns the arm's windowed mean reward, or 0 if untried.
func (a *Arm) MeanReward() float64 {
	return a.window.mean()
}

// WilsonInterval returns the 95% Wilson score confidence interval for
// the arm's windowed mean reward, treating it as a Bernoulli success
// rate over the window's sample count.
func (a *Arm) WilsonInterval() (low, high float64) {
	n := float64(a.window.len())
	if n == 0 {
		return 0, 0
	}
	p := a.MeanReward()
	const z = 1.959963985 // 95%
	denom := 1 + z*z/n
	center := p + z*z/(2*n)
	margin := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))
	low = (center - margin) / denom
	high = (center + margin) / denom
	if low < 0 {
		low = 0
	}
	if high > 1 {
		high = 1
	}
	return low, high
}
