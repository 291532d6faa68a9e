package backoff_test

import (
	"math"
	"testing"
	"time"

	"github.com/effective-security/toolgate/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DelayBounds(t *testing.T) {
	p := backoff.New()
	for attempt := uint(1); attempt <= 6; attempt++ {
		base := 1000 * math.Pow(2, float64(attempt-1))
		lo := time.Duration(base*0.875) * time.Millisecond
		hi := time.Duration(math.Min(base*1.125, 30000)) * time.Millisecond
		for i := 0; i < 200; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func Test_DelayNominal(t *testing.T) {
	// rand() == 0.5 yields zero jitter
	p := backoff.New(backoff.WithRand(func() float64 { return 0.5 }))

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 16*time.Second, p.Delay(5))
	// 32s is capped at 30s
	assert.Equal(t, 30*time.Second, p.Delay(6))
	assert.Equal(t, 30*time.Second, p.Delay(10))

	// attempt 0 is treated as the first retry
	assert.Equal(t, time.Second, p.Delay(0))
}

func Test_DelayJitterSpread(t *testing.T) {
	pLow := backoff.New(backoff.WithRand(func() float64 { return 0 }))
	pHigh := backoff.New(backoff.WithRand(func() float64 { return 1 }))

	// +/- 12.5% of base
	assert.Equal(t, 875*time.Millisecond, pLow.Delay(1))
	assert.Equal(t, 1125*time.Millisecond, pHigh.Delay(1))
}

func Test_DelayOverrides(t *testing.T) {
	p := backoff.New(
		backoff.WithBaseDelay(10*time.Millisecond),
		backoff.WithMaxDelay(25*time.Millisecond),
		backoff.WithRand(func() float64 { return 0.5 }),
	)
	require.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 25*time.Millisecond, p.Delay(3))
}
