package bandit

import (
	"fmt"

	"github.com/resilientkernel/kernel/platform"
)

// ArmEstimate is the exported form of one arm's learned state.
type ArmEstimate struct {
	Label       string    `json:"label"`
	Trials      int64     `json:"trials"`
	TotalReward float64   `json:"total_reward"`
	Window      []float64 `json:"window"`
}

// ModelSnapshot is the exported form of a Model, suitable for
// persistence across process restarts.
type ModelSnapshot struct {
	Algorithm   Algorithm     `json:"algorithm"`
	ArmEstimates []ArmEstimate `json:"arm_estimates"`
	Epsilon     float64       `json:"epsilon"`
	Trials      int64         `json:"trials"`
	TotalReward float64       `json:"total_reward"`
	TimestampMs int64         `json:"ts"`
}

// Export yields a ModelSnapshot capturing exact arm counts, reward
// sums, and windowed history, timestamped at nowMs (caller-supplied so
// Export itself never reads the clock, keeping snapshots deterministic
// for tests and workflow replay).
func (m *Model) Export(nowMs int64) ModelSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	estimates := make([]ArmEstimate, 0, len(m.order))
	for _, label := range m.order {
		a := m.arms[label]
		estimates = append(estimates, ArmEstimate{
			Label: label, Trials: a.Trials, TotalReward: a.TotalReward,
			Window: a.window.snapshot(),
		})
	}
	return ModelSnapshot{
		Algorithm: m.algorithm, ArmEstimates: estimates,
		Epsilon: m.epsilon, Trials: m.totalTrials, TotalReward: m.totalReward,
		TimestampMs: nowMs,
	}
}

// Import restores arm counts, reward sums, and windowed history from
// snap, validating that the snapshot's algorithm tag matches the
// model's configured algorithm before mutating any state.
func (m *Model) Import(snap ModelSnapshot) error {
	if snap.Algorithm != m.algorithm {
		return platform.NewKernelError("bandit.Import", "invalid_input",
			fmt.Errorf("%w: snapshot algorithm %q does not match model algorithm %q", platform.ErrInvalidInput, snap.Algorithm, m.algorithm))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, est := range snap.ArmEstimates {
		a, ok := m.arms[est.Label]
		if !ok {
			continue
		}
		a.Trials = est.Trials
		a.TotalReward = est.TotalReward
		a.window = newRingBuffer(m.windowSize)
		for _, v := range est.Window {
			a.window.push(v)
		}
	}
	m.epsilon = snap.Epsilon
	m.totalTrials = snap.Trials
	m.totalReward = snap.TotalReward
	return nil
}
