package envelope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRMSOfConstantSignal(t *testing.T) {
	t.Parallel()

	d := New(100, 0, 0)
	var rms, peak float64
	for i := 0; i < 200; i++ {
		rms, peak = d.Next(1.0)
	}
	assert.InDelta(t, 1.0, rms, 1e-6)
	assert.InDelta(t, 1.0, peak, 1e-3)
}

func TestRMSOfSilence(t *testing.T) {
	t.Parallel()

	d := New(50, 0, 0)
	var rms float64
	for i := 0; i < 60; i++ {
		rms, _ = d.Next(0)
	}
	assert.Equal(t, 0.0, rms)
}

func TestPeakFollowerRisesFasterThanItFalls(t *testing.T) {
	t.Parallel()

	// Short attack, long release: a step up should settle near target
	// quickly, while decaying back to zero should take noticeably longer.
	d := New(10, 2, 200)
	var peak float64
	for i := 0; i < 10; i++ {
		_, peak = d.Next(1.0)
	}
	roseTo := peak
	assert.Greater(t, roseTo, 0.9)

	for i := 0; i < 10; i++ {
		_, peak = d.Next(0.0)
	}
	assert.Greater(t, peak, 0.1, "slow release should not have decayed much after only 10 samples")
}

func TestRMSWindowForgetsOldSamples(t *testing.T) {
	t.Parallel()

	d := New(4, 0, 0)
	for i := 0; i < 4; i++ {
		d.Next(1.0)
	}
	rms, _ := d.Current()
	assert.InDelta(t, 1.0, rms, 1e-9)

	for i := 0; i < 4; i++ {
		d.Next(0.0)
	}
	rms, _ = d.Current()
	assert.InDelta(t, 0.0, rms, 1e-9)
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()

	d := New(8, 0, 0)
	for i := 0; i < 8; i++ {
		d.Next(1.0)
	}
	d.Reset()
	rms, peak := d.Current()
	assert.Equal(t, 0.0, rms)
	assert.Equal(t, 0.0, peak)
}

func TestNeverProducesNaN(t *testing.T) {
	t.Parallel()

	d := New(16, 0, 0)
	for i := 0; i < 100; i++ {
		rms, peak := d.Next(float32(math.Sin(float64(i))))
		assert.False(t, math.IsNaN(rms))
		assert.False(t, math.IsNaN(peak))
	}
}
