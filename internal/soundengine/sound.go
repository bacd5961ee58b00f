package soundengine

import (
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/envelope"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// ActiveSound is a playing instance of a model.Sound, holding the
// mutable playback state (age, exhaustion, per-channel envelope
// detectors) the renderer needs on every callback (spec §4.E/§4.F).
// The model.Sound value itself is owned elsewhere and copied in: this
// type never reaches back into shared project state.
type ActiveSound struct {
	Sound    model.Sound
	Channels int
	Signal   Signal

	// Envelopes holds one RMS/peak detector per source channel, fed
	// from the post-envelope, post-volume sample the renderer is about
	// to fan out to speakers.
	Envelopes []*envelope.Detector

	ageFrames int64
	exhausted bool
}

// New creates an ActiveSound bound to signal, with a fresh envelope
// detector per channel.
func New(sound model.Sound, signal Signal) *ActiveSound {
	channels := sound.Channels
	if channels < 1 {
		channels = 1
	}
	dets := make([]*envelope.Detector, channels)
	for i := range dets {
		dets[i] = envelope.New(envelope.DefaultRMSWindowFrames, 0, 0)
	}
	return &ActiveSound{
		Sound:     sound,
		Channels:  channels,
		Signal:    signal,
		Envelopes: dets,
	}
}

// Exhausted reports whether this sound should be removed from the
// active set (spec §4.F step 5).
func (a *ActiveSound) Exhausted() bool {
	return a.exhausted
}

// AgeFrames returns how many frames this sound has produced so far.
func (a *ActiveSound) AgeFrames() int64 {
	return a.ageFrames
}

// Advance pulls nFrames frames of this sound's signal into out (which
// must have length nFrames*Channels), applies the attack/release
// envelope ramp and the volume/mute scalar in place, feeds each
// channel's envelope detector, and advances age. It marks the sound
// exhausted if the signal reports its terminal end or
// total_duration_frames has elapsed (spec §4.E, §4.F.a/c); a short
// pull without a terminal end (an underrun) plays as silence and
// leaves the sound active.
func (a *ActiveSound) Advance(out []float32, nFrames int) {
	want := nFrames * a.Channels
	n, sigFinal := a.Signal.Pull(out[:want])
	framesRead := n / a.Channels

	if sigFinal {
		a.exhausted = true
	}

	for f := 0; f < nFrames; f++ {
		var gain float64
		if f < framesRead {
			gain = a.envelopeGain(a.ageFrames + int64(f))
		}
		if a.Sound.Muted {
			gain = 0
		} else {
			gain *= a.Sound.Volume
		}

		for ch := 0; ch < a.Channels; ch++ {
			idx := f*a.Channels + ch
			sample := out[idx] * float32(gain)
			out[idx] = sample
			a.Envelopes[ch].Next(sample)
		}
	}

	a.ageFrames += int64(nFrames)
	if a.Sound.TotalDurationFrames > 0 && a.ageFrames >= a.Sound.TotalDurationFrames {
		a.exhausted = true
	}
}

// envelopeGain computes the linear attack/release ramp at frame age
// (spec §4.E): ramping up over the first attack_frames, and -- only
// when total_duration_frames is set, since an unlimited sound has no
// known end to ramp down into -- ramping down over the last
// release_frames.
func (a *ActiveSound) envelopeGain(age int64) float64 {
	gain := 1.0

	if a.Sound.AttackFrames > 0 && age < a.Sound.AttackFrames {
		gain = float64(age) / float64(a.Sound.AttackFrames)
	}

	if a.Sound.TotalDurationFrames > 0 && a.Sound.ReleaseFrames > 0 {
		remaining := a.Sound.TotalDurationFrames - age
		releaseGain := float64(remaining) / float64(a.Sound.ReleaseFrames)
		if releaseGain < 0 {
			releaseGain = 0
		}
		if remaining < a.Sound.ReleaseFrames && releaseGain < gain {
			gain = releaseGain
		}
	}

	return gain
}
