package bandit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/resilientkernel/kernel/platform"
	"github.com/resilientkernel/kernel/telemetry"
)

func init() {
	telemetry.DeclareMetrics("bandit", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{Name: "bandit.selected", Type: "counter", Help: "Arm selections", Labels: []string{"arm", "algorithm"}},
			{Name: "bandit.rewarded", Type: "counter", Help: "Reward observations", Labels: []string{"arm"}},
		},
	})
}

// Algorithm selects which bandit strategy a Model uses to pick arms.
type Algorithm string

const (
	EpsilonGreedy Algorithm = "epsilon_greedy"
	UCB           Algorithm = "ucb"
)

const (
	defaultWindowSize      = 200
	defaultInitialEpsilon  = 0.2
	defaultEpsilonDecay    = 0.999
	defaultEpsilonFloor    = 0.01
	defaultConfidenceLevel = 2.0
	contextualMinSamples   = 10
	contextualMinShare     = 0.6
	contextualMinMean      = 0.7
	contextualBonus        = 0.05
)

// SelectionContext carries the optional contextual-bias key material
// for one Select call.
type SelectionContext struct {
	ProjectID         string
	AgentTypes        []string
	WorkingHoursBucket string
}

func (c SelectionContext) hash() string {
	types := append([]string{}, c.AgentTypes...)
	sort.Strings(types)
	raw := fmt.Sprintf("%s|%s|%s", c.ProjectID, strings.Join(types, ","), c.WorkingHoursBucket)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type contextBucket struct {
	armCounts map[string]int64
	total     int64
}

// Model selects among a fixed set of arms using ε-greedy or UCB,
// tracks per-arm windowed reward statistics, and favors arms with a
// strong track record for a recognized context.
type Model struct {
	mu sync.Mutex

	algorithm Algorithm
	arms      map[string]*Arm
	order     []string

	epsilon         float64
	initialEpsilon  float64
	epsilonDecay    float64
	epsilonFloor    float64
	confidenceLevel float64
	windowSize      int

	totalTrials  int64
	totalReward  float64
	contextStats map[string]*contextBucket

	rnd    *rand.Rand
	logger platform.Logger
}

// Option configures a Model at construction.
type Option func(*Model)

func WithEpsilon(initial, decay, floor float64) Option {
	return func(m *Model) { m.initialEpsilon, m.epsilonDecay, m.epsilonFloor = initial, decay, floor }
}

func WithConfidenceLevel(c float64) Option { return func(m *Model) { m.confidenceLevel = c } }
func WithWindowSize(n int) Option          { return func(m *Model) { m.windowSize = n } }
func WithLogger(l platform.Logger) Option  { return func(m *Model) { m.logger = l } }

// New builds a Model over arms using algorithm.
func New(algorithm Algorithm, arms []string, opts ...Option) *Model {
	m := &Model{
		algorithm:       algorithm,
		arms:            make(map[string]*Arm, len(arms)),
		order:           append([]string{}, arms...),
		initialEpsilon:  defaultInitialEpsilon,
		epsilonDecay:    defaultEpsilonDecay,
		epsilonFloor:    defaultEpsilonFloor,
		confidenceLevel: defaultConfidenceLevel,
		windowSize:      defaultWindowSize,
		contextStats:    make(map[string]*contextBucket),
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:          platform.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.epsilon = m.initialEpsilon
	for _, label := range arms {
		m.arms[label] = newArm(label, m.windowSize)
	}
	return m
}

// Select picks an arm according to the configured algorithm, optionally
// biased by sctx's recognized-context track record.
func (m *Model) Select(sctx SelectionContext) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var chosen string
	switch m.algorithm {
	case UCB:
		chosen = m.selectUCBLocked()
	default:
		chosen = m.selectEpsilonGreedyLocked(sctx)
	}

	telemetry.Counter("bandit.selected", "arm", chosen, "algorithm", string(m.algorithm))
	return chosen
}

func (m *Model) selectEpsilonGreedyLocked(sctx SelectionContext) string {
	defer m.decayEpsilonLocked()
	if m.rnd.Float64() < m.epsilon {
		return m.order[m.rnd.Intn(len(m.order))]
	}
	return m.bestByScoreLocked(sctx)
}

func (m *Model) decayEpsilonLocked() {
	m.epsilon *= m.epsilonDecay
	if m.epsilon < m.epsilonFloor {
		m.epsilon = m.epsilonFloor
	}
}

func (m *Model) selectUCBLocked() string {
	for _, label := range m.order {
		if m.arms[label].Trials == 0 {
			return label
		}
	}
	best, bestScore := "", math.Inf(-1)
	total := float64(m.totalTrials)
	for _, label := range m.order {
		a := m.arms[label]
		bonus := m.confidenceLevel * math.Sqrt(math.Log(total)/float64(a.Trials))
		score := a.MeanReward() + bonus
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	return best
}

// bestByScoreLocked picks argmax(mean_reward) with the contextual bonus
// applied to any arm the recognized context strongly favors.
func (m *Model) bestByScoreLocked(sctx SelectionContext) string {
	favored, ok := m.favoredArmLocked(sctx)
	best, bestScore := "", math.Inf(-1)
	for _, label := range m.order {
		score := m.arms[label].MeanReward()
		if ok && label == favored {
			score += contextualBonus
		}
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	return best
}

func (m *Model) favoredArmLocked(sctx SelectionContext) (string, bool) {
	bucket, ok := m.contextStats[sctx.hash()]
	if !ok || bucket.total < contextualMinSamples {
		return "", false
	}
	var dominant string
	var dominantCount int64
	for arm, count := range bucket.armCounts {
		if count > dominantCount {
			dominant, dominantCount = arm, count
		}
	}
	share := float64(dominantCount) / float64(bucket.total)
	if share <= contextualMinShare {
		return "", false
	}
	if a, ok := m.arms[dominant]; !ok || a.MeanReward() <= contextualMinMean {
		return "", false
	}
	return dominant, true
}

// Reward records an observation of reward in [0,1] for arm, optionally
// attributed to a recognized context for future bias decisions.
func (m *Model) Reward(arm string, reward float64, sctx SelectionContext) error {
	if reward < 0 || reward > 1 {
		return platform.NewKernelError("bandit.Reward", "invalid_input", fmt.Errorf("%w: reward %v out of [0,1]", platform.ErrInvalidInput, reward))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.arms[arm]
	if !ok {
		return platform.NewKernelError("bandit.Reward", "invalid_input", fmt.Errorf("%w: unknown arm %q", platform.ErrInvalidInput, arm))
	}
	a.update(reward)
	m.totalTrials++
	m.totalReward += reward

	key := sctx.hash()
	bucket, ok := m.contextStats[key]
	if !ok {
		bucket = &contextBucket{armCounts: make(map[string]int64)}
		m.contextStats[key] = bucket
	}
	bucket.armCounts[arm]++
	bucket.total++

	telemetry.Counter("bandit.rewarded", "arm", arm)
	return nil
}

// ArmStats is a snapshot of one arm's trial/reward counters.
type ArmStats struct {
	Label       string
	Trials      int64
	MeanReward  float64
	TotalReward float64
	CILow       float64
	CIHigh      float64
}

// Stats returns a snapshot of every arm's statistics.
func (m *Model) Stats() []ArmStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ArmStats, 0, len(m.order))
	for _, label := range m.order {
		a := m.arms[label]
		lo, hi := a.WilsonInterval()
		out = append(out, ArmStats{
			Label: label, Trials: a.Trials, MeanReward: a.MeanReward(),
			TotalReward: a.TotalReward, CILow: lo, CIHigh: hi,
		})
	}
	return out
}

// TotalTrials returns the number of Reward calls processed.
func (m *Model) TotalTrials() int64 { m.mu.Lock(); defer m.mu.Unlock(); return m.totalTrials }

// TotalReward returns the sum of all rewards processed.
func (m *Model) TotalReward() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.totalReward }

// Reset zeroes every counter, returning the model to its initial state.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, label := range m.order {
		m.arms[label] = newArm(label, m.windowSize)
	}
	m.totalTrials = 0
	m.totalReward = 0
	m.epsilon = m.initialEpsilon
	m.contextStats = make(map[string]*contextBucket)
}
