package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateUnlimitedByDefault(t *testing.T) {
	l := New()
	assert.True(t, l.BelowCap())
	l.Add(1 << 20)
	assert.True(t, l.BelowCap())
}

func TestRateMeasuresRecentBytes(t *testing.T) {
	l := New()
	base := time.Unix(1000, 0)
	l.now = func() time.Time { return base }

	l.Add(int64(Window.Seconds()) * 100)
	assert.InDelta(t, 100, l.Rate(), 0.01)
}

func TestRateExpiresOldSamples(t *testing.T) {
	l := New()
	base := time.Unix(1000, 0)
	l.now = func() time.Time { return base }
	l.Add(1000)

	l.now = func() time.Time { return base.Add(Window + time.Second) }
	assert.Equal(t, float64(0), l.Rate())
}

func TestBelowCapRespectsConfiguredCap(t *testing.T) {
	l := New()
	base := time.Unix(2000, 0)
	l.now = func() time.Time { return base }
	l.SetCap(int64(Window.Seconds()) * 10)

	assert.True(t, l.BelowCap())
	l.Add(int64(Window.Seconds()) * 1000)
	assert.False(t, l.BelowCap())
}

func TestSetCapZeroDisablesGate(t *testing.T) {
	l := New()
	l.SetCap(1)
	l.Add(1 << 20)
	l.SetCap(0)
	assert.True(t, l.BelowCap())
}
