package soundengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// constantSignal always produces the same value per sample, never ends.
type constantSignal struct{ value float32 }

func (c constantSignal) Pull(out []float32) (int, bool) {
	for i := range out {
		out[i] = c.value
	}
	return len(out), false
}

// finiteSignal produces value for exactly frames frames then reports final.
type finiteSignal struct {
	value    float32
	channels int
	frames   int
	produced int
}

func (f *finiteSignal) Pull(out []float32) (int, bool) {
	remaining := f.frames - f.produced
	wantFrames := len(out) / f.channels
	if remaining <= 0 {
		for i := range out {
			out[i] = 0
		}
		return 0, true
	}
	take := wantFrames
	final := false
	if take >= remaining {
		take = remaining
		final = true
	}
	for i := 0; i < take*f.channels; i++ {
		out[i] = f.value
	}
	for i := take * f.channels; i < len(out); i++ {
		out[i] = 0
	}
	f.produced += take
	return take * f.channels, final
}

func TestAdvanceAppliesVolumeAndMute(t *testing.T) {
	t.Parallel()

	sound := model.Sound{ID: "s1", Channels: 1, Volume: 0.5}
	a := New(sound, constantSignal{value: 1.0})

	out := make([]float32, 4)
	a.Advance(out, 4)
	for _, v := range out {
		assert.InDelta(t, 0.5, v, 1e-6)
	}

	a2 := New(model.Sound{ID: "s2", Channels: 1, Volume: 1, Muted: true}, constantSignal{value: 1.0})
	out2 := make([]float32, 4)
	a2.Advance(out2, 4)
	for _, v := range out2 {
		assert.Equal(t, float32(0), v)
	}
}

func TestAdvanceAttackRamp(t *testing.T) {
	t.Parallel()

	sound := model.Sound{ID: "s1", Channels: 1, Volume: 1, AttackFrames: 4}
	a := New(sound, constantSignal{value: 1.0})

	out := make([]float32, 4)
	a.Advance(out, 4)
	// Frame 0 ramps from 0/4, frame 3 reaches 3/4.
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.75, out[3], 1e-6)
}

func TestAdvanceReleaseRampOnlyWithTotalDuration(t *testing.T) {
	t.Parallel()

	sound := model.Sound{ID: "s1", Channels: 1, Volume: 1, TotalDurationFrames: 8, ReleaseFrames: 4}
	a := New(sound, constantSignal{value: 1.0})

	out := make([]float32, 8)
	a.Advance(out, 8)
	// Frames 4..7 are within the last 4 release frames and should ramp
	// down towards 0; the first 4 are full volume.
	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.Less(t, out[7], out[4])
}

func TestAdvanceMarksExhaustedOnShortSignal(t *testing.T) {
	t.Parallel()

	sig := &finiteSignal{value: 1.0, channels: 1, frames: 3}
	sound := model.Sound{ID: "s1", Channels: 1, Volume: 1}
	a := New(sound, sig)

	out := make([]float32, 8)
	a.Advance(out, 8)
	assert.True(t, a.Exhausted())
	// The unfilled tail should be silence.
	assert.Equal(t, float32(0), out[7])
}

func TestAdvanceMarksExhaustedOnTotalDuration(t *testing.T) {
	t.Parallel()

	sound := model.Sound{ID: "s1", Channels: 1, Volume: 1, TotalDurationFrames: 4}
	a := New(sound, constantSignal{value: 1.0})

	out := make([]float32, 4)
	a.Advance(out, 4)
	assert.True(t, a.Exhausted())
	assert.Equal(t, int64(4), a.AgeFrames())
}

func TestAdvanceFeedsPerChannelEnvelopes(t *testing.T) {
	t.Parallel()

	sound := model.Sound{ID: "s1", Channels: 2, Volume: 1}
	a := New(sound, constantSignal{value: 1.0})
	require.Len(t, a.Envelopes, 2)

	out := make([]float32, 200)
	a.Advance(out, 100)

	rms, _ := a.Envelopes[0].Current()
	assert.Greater(t, rms, 0.0)
}

func TestRealtimeSignalUnderrunProducesSilence(t *testing.T) {
	t.Parallel()

	rs := NewRealtimeSignal(2, 0, 4)
	out := make([]float32, 8)
	n, final := rs.Pull(out)
	assert.Equal(t, 0, n)
	assert.False(t, final)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestRealtimeSignalDropsOnOverflow(t *testing.T) {
	t.Parallel()

	rs := NewRealtimeSignal(1, 0, 1)
	rs.Push([]float32{1, 2, 3})
	rs.Push([]float32{4, 5, 6}) // queue capacity 1, should be dropped

	out := make([]float32, 3)
	n, _ := rs.Pull(out)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{1, 2, 3}, out)
}

func TestRealtimeSignalLatencyPadsWithSilenceFirst(t *testing.T) {
	t.Parallel()

	rs := NewRealtimeSignal(1, 4, 4)
	rs.Push([]float32{9, 9, 9, 9})

	out := make([]float32, 4)
	n, _ := rs.Pull(out)
	assert.Equal(t, 4, n)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}
