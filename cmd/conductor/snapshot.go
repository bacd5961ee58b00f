package main

import (
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundscape"
)

// demoSnapshot builds a small, self-consistent project replica so the
// conductor binary runs standalone. Project persistence and editing
// are owned by an external control layer that is out of scope for
// this module; it is expected to replace this with Snapshot values
// delivered over its own typed channel (spec: "all mutable project
// state is owned by the control/UI layer and published by value ...
// through typed message channels").
func demoSnapshot() soundscape.Snapshot {
	installation := model.Installation{
		ID:                 "inst-1",
		Name:               "Gallery",
		SimultaneousSounds: model.IntRange{Min: 1, Max: 4},
		Computers: []model.Computer{
			{ID: "comp-1", SocketAddr: "127.0.0.1:9000", TelemetryAddr: "127.0.0.1:9001"},
		},
	}

	speakers := []model.Speaker{
		{ID: "spk-1", Channel: 0, Point: model.Point{X: -2, Y: -2}, InstallationID: []string{"inst-1"}},
		{ID: "spk-2", Channel: 1, Point: model.Point{X: 2, Y: -2}, InstallationID: []string{"inst-1"}},
		{ID: "spk-3", Channel: 2, Point: model.Point{X: -2, Y: 2}, InstallationID: []string{"inst-1"}},
		{ID: "spk-4", Channel: 3, Point: model.Point{X: 2, Y: 2}, InstallationID: []string{"inst-1"}},
	}

	ambience := model.Source{
		ID:   "src-ambience",
		Name: "Ambience",
		Kind: model.SourceWAV,
		WAV: model.WAVSourceConfig{
			Path:       "assets/ambience.wav",
			SampleRate: model.SampleRate,
			Channels:   1,
			ShouldLoop: true,
			Mode:       model.PlaybackContinuous,
		},
		Role:   model.RoleSoundscape,
		Volume: 1,
		Soundscape: model.SoundscapeConstraints{
			OccurrenceRateMS:       model.Range{Min: 4000, Max: 12000},
			SimultaneousSounds:     model.IntRange{Min: 1, Max: 2},
			PlaybackDurationFrames: model.Range{Min: float64(model.SampleRate * 8), Max: float64(model.SampleRate * 20)},
			AttackFrames:           model.Range{Min: float64(model.SampleRate), Max: float64(model.SampleRate)},
			ReleaseFrames:          model.Range{Min: float64(model.SampleRate), Max: float64(model.SampleRate)},
			Movement: model.MovementDescriptor{
				Kind: model.MovementNgon,
				Ngon: model.NgonDescriptor{
					Vertices:             5,
					Nth:                  1,
					NormalizedDimensions: model.Point{X: 0.8, Y: 0.8},
					Speed:                model.Range{Min: 0.2, Max: 0.6},
				},
			},
		},
	}

	return soundscape.Snapshot{
		Installations: []model.Installation{installation},
		Speakers:      speakers,
		Sources:       []model.Source{ambience},
	}
}
