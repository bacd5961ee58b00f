package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/render"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundengine"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/wavstream"
)

func testRenderer() *render.Renderer {
	speakers := []model.Speaker{
		{ID: "spk-1", Channel: 0, Point: model.Point{X: -1, Y: -1}, InstallationID: []string{"inst-1"}},
		{ID: "spk-2", Channel: 1, Point: model.Point{X: 1, Y: 1}, InstallationID: []string{"inst-1"}},
	}
	installations := []model.Installation{
		{ID: "inst-1", Name: "Test", SimultaneousSounds: model.IntRange{Min: 0, Max: 4}, Computers: nil},
	}
	return render.New(render.DefaultConfig(), speakers, installations)
}

func testSound(channels int, sourceID string) model.Sound {
	return model.Sound{ID: "sound-" + sourceID, SourceID: sourceID, Channels: channels, Position: model.Point{}, Volume: 1}
}

func TestRenderPortSpawnWAVTracksStreamUntilEnded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := wavstream.New(ctx)
	defer coordinator.Close()

	renderer := testRenderer()
	port := newRenderPort(coordinator, renderer, logging.ForService("test"))
	port.updateSources([]model.Source{
		{ID: "src-1", Soundscape: model.SoundscapeConstraints{Installations: []string{"inst-1"}}},
	})

	sound := testSound(1, "src-1")
	port.SpawnWAV(sound, "src-1", "nonexistent.wav", false)

	port.mu.Lock()
	_, tracked := port.streams[sound.ID]
	port.mu.Unlock()
	assert.True(t, tracked, "spawned sound should be tracked until it ends")

	port.onSoundEnded(sound.ID)

	port.mu.Lock()
	_, stillTracked := port.streams[sound.ID]
	port.mu.Unlock()
	assert.False(t, stillTracked, "onSoundEnded must release the stream entry")
}

func TestRenderPortSpawnRealtimeRequiresRegisteredSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := wavstream.New(ctx)
	defer coordinator.Close()

	renderer := testRenderer()
	port := newRenderPort(coordinator, renderer, logging.ForService("test"))

	sound := testSound(1, "src-realtime")
	port.SpawnRealtime(sound, "src-realtime")

	signal := soundengine.NewRealtimeSignal(1, 0, 4)
	port.registerRealtimeSignal("src-realtime", signal)
	port.SpawnRealtime(sound, "src-realtime")
}

func TestDemoSnapshotIsConsistent(t *testing.T) {
	snap := demoSnapshot()
	require.Len(t, snap.Installations, 1)
	require.NotEmpty(t, snap.Speakers)
	require.Len(t, snap.Sources, 1)

	instID := snap.Installations[0].ID
	for _, sp := range snap.Speakers {
		assert.True(t, sp.ServesInstallation(instID))
	}
	assert.True(t, snap.Sources[0].WAV.Validate() == nil || snap.Sources[0].WAV.SampleRate == model.SampleRate)
}

func TestRandomSeedProducesDistinctSeeds(t *testing.T) {
	a, err := randomSeed()
	require.NoError(t, err)
	b, err := randomSeed()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewRealtimeSignalHonoursLatency(t *testing.T) {
	sig := newRealtimeSignal(2, model.SampleRate/10)
	out := make([]float32, 20)
	n, final := sig.Pull(out)
	assert.Equal(t, len(out), n)
	assert.False(t, final)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}
