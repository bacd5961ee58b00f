package dbap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGainsEqualDistanceEqualWeightYieldsEqualGains(t *testing.T) {
	t.Parallel()

	speakers := []Speaker{
		{Distance: 2, Weight: 1},
		{Distance: 2, Weight: 1},
		{Distance: 2, Weight: 1},
	}
	out := make([]float64, len(speakers))
	Gains(out, speakers, 6)

	for i := 1; i < len(out); i++ {
		assert.InDelta(t, out[0], out[i], 1e-9)
	}
	assert.Greater(t, out[0], 0.0)
}

func TestGainsScalingWeightsDoesNotChangeOutput(t *testing.T) {
	t.Parallel()

	base := []Speaker{
		{Distance: 1, Weight: 1},
		{Distance: 10, Weight: 1},
	}
	scaled := []Speaker{
		{Distance: 1, Weight: 3},
		{Distance: 10, Weight: 3},
	}

	outBase := make([]float64, len(base))
	outScaled := make([]float64, len(scaled))
	Gains(outBase, base, 6)
	Gains(outScaled, scaled, 6)

	for i := range outBase {
		assert.InDelta(t, outBase[i], outScaled[i], 1e-9)
	}
}

func TestGainsCloserSpeakerGetsMoreGain(t *testing.T) {
	t.Parallel()

	speakers := []Speaker{
		{Distance: 1, Weight: 1},
		{Distance: 10, Weight: 1},
	}
	out := make([]float64, 2)
	Gains(out, speakers, 6)

	assert.Greater(t, out[0], out[1])
	// 6dB rolloff halves amplitude per doubling of distance, so over a
	// 10x distance ratio the gain ratio should be roughly 10x too.
	assert.InDelta(t, 10.0, out[0]/out[1], 1.0)
}

func TestGainsZeroWeightYieldsZeroGain(t *testing.T) {
	t.Parallel()

	speakers := []Speaker{
		{Distance: 1, Weight: 0},
		{Distance: 1, Weight: 1},
	}
	out := make([]float64, 2)
	Gains(out, speakers, 6)

	assert.Equal(t, 0.0, out[0])
	assert.Greater(t, out[1], 0.0)
}

func TestDistanceSquaredNeverZeroOrNaN(t *testing.T) {
	t.Parallel()

	d2 := DistanceSquared(0, 0, 0)
	assert.False(t, math.IsNaN(d2))
	assert.False(t, math.IsInf(d2, 0))
	assert.GreaterOrEqual(t, d2, MinDistanceSquared)
}

func TestGainsAllZeroWeightsProducesNoNaN(t *testing.T) {
	t.Parallel()

	speakers := []Speaker{{Distance: 1, Weight: 0}, {Distance: 2, Weight: 0}}
	out := make([]float64, 2)
	Gains(out, speakers, 6)

	for _, g := range out {
		assert.False(t, math.IsNaN(g))
		assert.Equal(t, 0.0, g)
	}
}

// TestGainsPropertyNeverNaNOrInf uses rapid to generate arbitrary speaker
// layouts and asserts the panner never produces NaN/Inf gains, mirroring
// the boundary invariant in spec §8: distance-blur floor never produces
// NaN/Inf regardless of input distances or weights.
func TestGainsPropertyNeverNaNOrInf(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		speakers := make([]Speaker, n)
		for i := range speakers {
			blur := 0.001
			dx := rapid.Float64Range(-50, 50).Draw(rt, "dx")
			dy := rapid.Float64Range(-50, 50).Draw(rt, "dy")
			d2 := DistanceSquared(dx, dy, blur)
			speakers[i] = Speaker{
				Distance: math.Sqrt(d2),
				Weight:   rapid.Float64Range(0, 5).Draw(rt, "w"),
			}
		}
		rolloff := rapid.Float64Range(1, 6).Draw(rt, "rolloff")

		out := make([]float64, n)
		Gains(out, speakers, rolloff)

		for _, g := range out {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				rt.Fatalf("gain is NaN/Inf: %v (speakers=%v rolloff=%v)", g, speakers, rolloff)
			}
		}
	})
}
