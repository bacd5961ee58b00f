package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

type constantSignal struct{ value float32 }

func (c constantSignal) Pull(out []float32) (int, bool) {
	for i := range out {
		out[i] = c.value
	}
	return len(out), false
}

func baseSound(id string) model.Sound {
	return model.Sound{
		ID:       id,
		SourceID: "src",
		Channels: 1,
		Volume:   1,
	}
}

func TestRenderWithNoActiveSoundsIsSilent(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{}}}
	r := New(DefaultConfig(), speakers, nil)

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)

	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestSingleSoundSingleSpeakerApproximatesUnityGain(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{X: 0, Y: 0}, InstallationID: []string{"inst-1"}}}
	cfg := DefaultConfig()
	r := New(cfg, speakers, nil)

	sound := baseSound("s1")
	require.NoError(t, r.Spawn(sound, nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)

	for _, s := range out {
		assert.InDelta(t, 1.0, s, 1e-3)
	}
}

func TestOrphanSpeakerStillReceivesAssignedToAllSound(t *testing.T) {
	t.Parallel()

	// Speaker has no InstallationID at all; a sound assigned to every
	// installation (empty installationIDs) must still reach it with unity
	// gain, per spec §4.C's "assigned to all installations" branch.
	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{X: 0, Y: 0}}}
	r := New(DefaultConfig(), speakers, nil)

	sound := baseSound("s1")
	require.NoError(t, r.Spawn(sound, nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)

	for _, s := range out {
		assert.InDelta(t, 1.0, s, 1e-3)
	}
}

func TestTwoEquidistantSpeakersReceiveEqualGain(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{
		{ID: "sp-1", Channel: 0, Point: model.Point{X: -1, Y: 0}, InstallationID: []string{"inst-1"}},
		{ID: "sp-2", Channel: 1, Point: model.Point{X: 1, Y: 0}, InstallationID: []string{"inst-1"}},
	}
	r := New(DefaultConfig(), speakers, nil)

	require.NoError(t, r.Spawn(baseSound("s1"), nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*2)
	r.Render(out, 2, model.FramesPerBuffer)

	assert.InDelta(t, out[0], out[1], 1e-6)
	assert.NotEqual(t, float32(0), out[0])
}

func TestDistantSpeakerReceivesLessGain(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{
		{ID: "sp-near", Channel: 0, Point: model.Point{X: 0, Y: 0}, InstallationID: []string{"inst-1"}},
		{ID: "sp-far", Channel: 1, Point: model.Point{X: 10, Y: 0}, InstallationID: []string{"inst-1"}},
	}
	cfg := DefaultConfig()
	cfg.BlurMetres = 1e-6
	r := New(cfg, speakers, nil)

	require.NoError(t, r.Spawn(baseSound("s1"), nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*2)
	r.Render(out, 2, model.FramesPerBuffer)

	assert.Greater(t, out[0], out[1])
}

func TestMutedSoundProducesNoOutput(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{}}}
	r := New(DefaultConfig(), speakers, nil)

	sound := baseSound("s1")
	sound.Muted = true
	require.NoError(t, r.Spawn(sound, nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)

	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestInsertThenRemoveLeavesSilence(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{}}}
	r := New(DefaultConfig(), speakers, nil)

	require.NoError(t, r.Spawn(baseSound("s1"), nil, constantSignal{value: 1.0}))
	assert.Len(t, r.active, 1)

	r.Remove("s1")
	assert.Len(t, r.active, 0)

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestExhaustedSoundIsRemovedAndReported(t *testing.T) {
	t.Parallel()

	speakers := []model.Speaker{{ID: "sp-1", Channel: 0, Point: model.Point{}}}
	r := New(DefaultConfig(), speakers, nil)

	sound := baseSound("s1")
	sound.TotalDurationFrames = 4
	require.NoError(t, r.Spawn(sound, nil, constantSignal{value: 1.0}))

	out := make([]float32, model.FramesPerBuffer*1)
	r.Render(out, 1, model.FramesPerBuffer)

	assert.Len(t, r.active, 0)

	select {
	case msg := <-r.Monitor():
		if ended, ok := msg.(SoundEnded); ok {
			assert.Equal(t, "s1", ended.SoundID)
			return
		}
	default:
	}
	// Drain further monitor messages (channel levels precede SoundEnded).
	for {
		select {
		case msg := <-r.Monitor():
			if ended, ok := msg.(SoundEnded); ok {
				assert.Equal(t, "s1", ended.SoundID)
				return
			}
		default:
			t.Fatal("expected a SoundEnded monitor message")
		}
	}
}

func TestSpawnRejectsZeroChannelSound(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig(), nil, nil)
	sound := baseSound("s1")
	sound.Channels = 0
	err := r.Spawn(sound, nil, constantSignal{value: 1.0})
	assert.Error(t, err)
}
