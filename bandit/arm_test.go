package bandit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferMeanOverUnfilledWindow(t *testing.T) {
	r := newRingBuffer(5)
	r.push(1)
	r.push(0)
	assert.InDelta(t, 0.5, r.mean(), 0.0001)
	assert.Equal(t, 2, r.len())
}

func TestRingBufferDropsOldestOnceFull(t *testing.T) {
	r := newRingBuffer(3)
	r.push(1)
	r.push(1)
	r.push(1)
	r.push(0) // evicts the first 1
	assert.InDelta(t, 2.0/3.0, r.mean(), 0.0001)
	assert.Equal(t, 3, r.len())
}

func TestArmWilsonIntervalBoundedWithinZeroAndOne(t *testing.T) {
	a := newArm("x", 50)
	for i := 0; i < 20; i++ {
		a.update(1)
	}
	for i := 0; i < 5; i++ {
		a.update(0)
	}
	lo, hi := a.WilsonInterval()
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 1.0)
	assert.Less(t, lo, hi)
}

func TestArmMeanRewardZeroWhenUntried(t *testing.T) {
	a := newArm("x", 10)
	assert.Equal(t, 0.0, a.MeanReward())
}
