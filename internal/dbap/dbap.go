// Package dbap implements distance-based amplitude panning (Lossius,
// Baxter & Wright, 2009). Given a list of (distance, weight) pairs for
// one source channel against each output speaker and a rolloff in dB,
// it computes a per-speaker gain. The hot path (Gains) never allocates
// beyond its caller-supplied output slice, so it can run inside the
// audio callback (spec §4.F).
package dbap

import "math"

// MinDistanceSquared is the smallest squared distance the panner will
// divide by; anything smaller is clamped to avoid NaN/Inf.
const MinDistanceSquared = 1e-9

// Speaker is one (distance, weight) input to the panner for a single
// source channel against a single output speaker.
type Speaker struct {
	Distance float64
	Weight   float64
}

// DistanceSquared computes the blurred squared distance between a
// source-channel point and a speaker point (spec §4.C): dx^2+dy^2+blur^2,
// clamped to MinDistanceSquared.
func DistanceSquared(dx, dy, blur float64) float64 {
	d2 := dx*dx + dy*dy + blur*blur
	if d2 < MinDistanceSquared {
		return MinDistanceSquared
	}
	return d2
}

// Weight returns 1.0 if the speaker serves assignedInstallation (or the
// sound is assigned to all installations, per spec §4.C), else 0.0.
func Weight(speakerServes bool, assignedToAll bool) float64 {
	if assignedToAll || speakerServes {
		return 1.0
	}
	return 0.0
}

// amplitudeFactor converts a rolloff in dB to the "a" term of the DBAP
// algorithm: a = 10^(-rolloff_db/20).
func amplitudeFactor(rolloffDB float64) float64 {
	return math.Pow(10, -rolloffDB/20)
}

// Gains computes the per-speaker gain for a single source channel and
// writes them into out, which must have the same length as speakers.
// Gains does not allocate.
func Gains(out []float64, speakers []Speaker, rolloffDB float64) {
	a := amplitudeFactor(rolloffDB)

	var denom float64
	for _, sp := range speakers {
		if sp.Distance <= 0 {
			continue
		}
		denom += (sp.Weight * sp.Weight) / (sp.Distance * sp.Distance)
	}

	var k float64
	if denom != 0 {
		k = 2 * a / math.Sqrt(denom)
	}

	for i, sp := range speakers {
		if sp.Distance <= 0 || k == 0 {
			out[i] = 0
			continue
		}
		out[i] = k * sp.Weight / (2 * sp.Distance * a)
	}
}

// GainsAlloc is a convenience wrapper for callers outside the audio path
// (tests, UI preview) that don't want to preallocate the output slice.
func GainsAlloc(speakers []Speaker, rolloffDB float64) []float64 {
	out := make([]float64, len(speakers))
	Gains(out, speakers, rolloffDB)
	return out
}
