package render

import "github.com/museumsvictoria/spatial-audio-server-sub000/internal/fftengine"

// SoundChannelLevel is the per-sound-channel monitor message emitted
// each callback (spec §4.F.2.c).
type SoundChannelLevel struct {
	SoundID      string
	ChannelIndex int
	RMS, Peak    float64
}

// SpeakerLevel is the per-speaker monitor message emitted each
// callback (spec §4.F.3).
type SpeakerLevel struct {
	SpeakerID string
	RMS, Peak float64
}

// SpeakerPeakRMS is one entry of an AudioFrameData's per-speaker list,
// in ascending channel order (spec §6 telemetry datagram).
type SpeakerPeakRMS struct {
	ChannelIndex int
	Peak, RMS    float64
}

// AudioFrameData is the aggregated per-installation message forwarded
// to the analysis dispatcher (spec §4.F.4, §6).
type AudioFrameData struct {
	InstallationID string
	AvgPeak        float64
	AvgRMS         float64
	LMH            fftengine.LMH
	Mel            [fftengine.MelBinCount]float64
	PerSpeaker     []SpeakerPeakRMS
}

// SoundEnded notifies that a sound was removed from the active set
// because its signal exhausted or its total duration elapsed (spec
// §4.F.5). Anything holding lifecycle bookkeeping for the sound
// (the soundscape controller, a WAV stream's coordinator entry) is
// expected to subscribe to this.
type SoundEnded struct {
	SoundID string
}
