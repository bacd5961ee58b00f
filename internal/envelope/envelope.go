// Package envelope implements the RMS/peak detectors used per sound
// channel and per speaker (spec §4.A). All state is preallocated;
// Next is branch-light and allocation-free so it can run on the audio
// callback.
package envelope

import (
	"math"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// DefaultRMSWindowFrames is sample_rate/60, approximately one video
// frame, the default RMS ring-buffer length (spec §4.A, §6).
const DefaultRMSWindowFrames = model.SampleRate / 60

// Detector tracks a windowed RMS and an attack/release peak follower
// for one audio channel.
type Detector struct {
	ring       []float32
	ringSquare float64 // running sum of squares, kept incrementally
	ringPos    int
	ringFilled int

	peak           float64
	attackFrames   float64
	releaseFrames  float64
}

// New creates a Detector with an RMS window of windowFrames samples.
// attackFrames/releaseFrames default to windowFrames/8 when <= 0, per
// spec §4.A.
func New(windowFrames int, attackFrames, releaseFrames float64) *Detector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	if attackFrames <= 0 {
		attackFrames = float64(windowFrames) / 8
	}
	if releaseFrames <= 0 {
		releaseFrames = float64(windowFrames) / 8
	}
	return &Detector{
		ring:          make([]float32, windowFrames),
		attackFrames:  attackFrames,
		releaseFrames: releaseFrames,
	}
}

// Next feeds one sample into the detector and returns the updated
// (rms, peak) pair.
func (d *Detector) Next(sample float32) (rms, peak float64) {
	old := float64(d.ring[d.ringPos])
	d.ringSquare -= old * old

	s := float64(sample)
	d.ringSquare += s * s
	d.ring[d.ringPos] = sample

	d.ringPos++
	if d.ringPos >= len(d.ring) {
		d.ringPos = 0
	}
	if d.ringFilled < len(d.ring) {
		d.ringFilled++
	}

	abs := math.Abs(s)
	if abs > d.peak {
		d.peak += (abs - d.peak) * (1 - math.Exp(-1/d.attackFrames))
	} else {
		d.peak += (abs - d.peak) * (1 - math.Exp(-1/d.releaseFrames))
	}

	return d.Current()
}

// Current returns the detector's current (rms, peak) without consuming
// a new sample.
func (d *Detector) Current() (rms, peak float64) {
	if d.ringFilled == 0 {
		return 0, d.peak
	}
	meanSquare := d.ringSquare / float64(d.ringFilled)
	if meanSquare < 0 {
		// Guards against floating point drift from the incremental
		// running sum producing a tiny negative value.
		meanSquare = 0
	}
	return math.Sqrt(meanSquare), d.peak
}

// Reset clears all detector state as if newly constructed.
func (d *Detector) Reset() {
	for i := range d.ring {
		d.ring[i] = 0
	}
	d.ringSquare = 0
	d.ringPos = 0
	d.ringFilled = 0
	d.peak = 0
}
