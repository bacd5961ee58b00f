// Package render implements the output renderer: the per-device-callback
// mix loop that pulls every active sound's signal, pans it across
// speakers with distance-based amplitude panning, and feeds the
// envelope/FFT detectors that drive monitoring and telemetry (spec
// §4.F).
package render

import (
	"math"
	"sync"

	"time"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/dbap"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/envelope"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/fftengine"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundengine"
)

// DefaultBlurMetres is the distance-squared floor used by the DBAP
// panner to avoid division by zero (spec §8 scenario 1).
const DefaultBlurMetres = 0.001

// MonitorQueueCapacity bounds the lock-free monitor/telemetry channel;
// the newest message is dropped on overflow (spec §4.F.2.c, §7 kind 3).
const MonitorQueueCapacity = 4096

// Config holds the renderer's tunable options (spec §4.F, §6).
type Config struct {
	MasterVolume         float64
	RolloffDB            float64
	ProximityLimitMetres float64
	BlurMetres           float64
	CPUSavingEnabled     bool
	FFTWindowLength      int
}

// DefaultConfig returns the spec-mandated defaults (spec §6).
func DefaultConfig() Config {
	return Config{
		MasterVolume:         1.0,
		RolloffDB:            6,
		ProximityLimitMetres: math.Inf(1),
		BlurMetres:           DefaultBlurMetres,
		FFTWindowLength:      fftengine.DefaultWindowLength,
	}
}

type renderSpeaker struct {
	speaker  model.Speaker
	envelope *envelope.Detector
}

type installationState struct {
	installation model.Installation
	speakerIdx   []int // indices into Renderer.speakers

	summed   []float32 // per-frame accumulator, reused each callback
	fftRing  []float32
	ringPos  int
	ringFill int

	fftEngine  *fftengine.Engine
	ampSquared []float64
	level      *envelope.Detector
}

type activeSound struct {
	active          *soundengine.ActiveSound
	installationIDs []string // empty means "all installations"
	scratch         []float32
}

// Renderer mixes every active sound into the device's output buffer
// once per callback (spec §4.F). Its mixing, DBAP and FFT scratch
// buffers are sized at construction time. Render still allocates: the
// list of sounds that ended, each AudioFrameData's per-speaker list,
// and the boxing of each monitor message into the any-typed channel.
type Renderer struct {
	mu sync.Mutex

	cfg Config

	speakers      []renderSpeaker
	installations []*installationState

	active map[string]*activeSound

	monitor chan any

	// scratch buffers, reused every callback; sized at construction.
	dbapSpeakers []dbap.Speaker
	dbapGains    []float64
	fftScratch   []float32
}

// New constructs a Renderer for the given speaker and installation
// layout. Speakers and installations are fixed for the renderer's
// lifetime; project edits that add/remove speakers require a new
// Renderer (spec §9 pre-allocation: "DBAP speaker buffers sized at
// startup").
func New(cfg Config, speakers []model.Speaker, installations []model.Installation) *Renderer {
	if cfg.FFTWindowLength <= 0 {
		cfg.FFTWindowLength = fftengine.DefaultWindowLength
	}

	r := &Renderer{
		cfg:          cfg,
		active:       make(map[string]*activeSound),
		monitor:      make(chan any, MonitorQueueCapacity),
		dbapSpeakers: make([]dbap.Speaker, len(speakers)),
		dbapGains:    make([]float64, len(speakers)),
		fftScratch:   make([]float32, cfg.FFTWindowLength),
	}

	r.speakers = make([]renderSpeaker, len(speakers))
	for i, sp := range speakers {
		r.speakers[i] = renderSpeaker{speaker: sp, envelope: envelope.New(envelope.DefaultRMSWindowFrames, 0, 0)}
	}

	r.installations = make([]*installationState, len(installations))
	for i, inst := range installations {
		var idx []int
		for si, sp := range r.speakers {
			if sp.speaker.ServesInstallation(inst.ID) {
				idx = append(idx, si)
			}
		}
		r.installations[i] = &installationState{
			installation: inst,
			speakerIdx:   idx,
			summed:       make([]float32, model.FramesPerBuffer),
			fftRing:      make([]float32, cfg.FFTWindowLength),
			fftEngine:    fftengine.New(cfg.FFTWindowLength),
			ampSquared:   make([]float64, cfg.FFTWindowLength/2+1),
			level:        envelope.New(envelope.DefaultRMSWindowFrames, 0, 0),
		}
	}

	return r
}

// Monitor returns the channel analysis dispatchers drain for monitor
// and telemetry-bound messages (spec §4.G).
func (r *Renderer) Monitor() <-chan any {
	return r.monitor
}

func (r *Renderer) postMonitor(msg any) {
	select {
	case r.monitor <- msg:
	default:
	}
}

// Spawn adds a new active sound to the renderer's owned set (spec
// §4.F design note: "Receives new sounds and removals via a lock-free
// MPSC queue processed at the top of the callback" -- here modelled as
// a mutex-guarded map since the Go scheduler has no true wait-free
// MPSC primitive in the standard library; Render holds the same mutex
// for its whole pass, so Spawn, Remove and PositionUpdate wait for an
// in-progress callback to finish).
func (r *Renderer) Spawn(sound model.Sound, installationIDs []string, signal soundengine.Signal) error {
	if err := sound.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[sound.ID] = &activeSound{
		active:          soundengine.New(sound, signal),
		installationIDs: installationIDs,
		scratch:         make([]float32, model.FramesPerBuffer*sound.Channels),
	}
	return nil
}

// PositionUpdate updates an active sound's pose, pushed each tick by
// the soundscape controller (spec §4.H step 3).
func (r *Renderer) PositionUpdate(soundID string, pos model.Point, radians float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	as, ok := r.active[soundID]
	if !ok {
		return
	}
	as.active.Sound.Position = pos
	as.active.Sound.Radians = radians
}

// Remove drops a sound from the active set immediately (spec §7:
// "A removed source silences all of its currently playing sounds").
func (r *Renderer) Remove(soundID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, soundID)
}

// Render performs one full device-callback pass (spec §4.F). out is
// an interleaved n_channels x n_frames buffer; nFrames must not exceed
// model.FramesPerBuffer and nChannels must not exceed model.MaxChannels.
func (r *Renderer) Render(out []float32, nChannels, nFrames int) {
	start := time.Now()
	defer func() { metrics.RecordRender(time.Since(start)) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range out {
		out[i] = 0
	}
	for _, inst := range r.installations {
		for i := 0; i < nFrames; i++ {
			inst.summed[i] = 0
		}
	}

	var exhausted []string
	for soundID, as := range r.active {
		r.mixOne(soundID, as, out, nChannels, nFrames)
		if as.active.Exhausted() {
			exhausted = append(exhausted, soundID)
		}
	}

	r.finishSpeakers(out, nChannels, nFrames)
	r.finishInstallations(nFrames)

	for _, soundID := range exhausted {
		delete(r.active, soundID)
		r.postMonitor(SoundEnded{SoundID: soundID})
	}
	metrics.SetActiveSounds(len(r.active))
}

func (r *Renderer) mixOne(soundID string, as *activeSound, out []float32, nChannels, nFrames int) {
	sound := as.active.Sound
	channels := sound.Channels
	if channels < 1 {
		channels = 1
	}

	as.active.Advance(as.scratch, nFrames)

	if sound.Muted {
		if !r.cfg.CPUSavingEnabled {
			r.emitChannelLevels(soundID, as)
		}
		return
	}

	for c := 0; c < channels; c++ {
		point := sound.ChannelPoint(c, channels)

		speakers := r.buildSpeakerList(point, as.installationIDs)
		gains := r.dbapGains[:len(speakers)]
		dbap.Gains(gains, speakers, r.cfg.RolloffDB)

		r.mixChannel(as.scratch, c, channels, gains, out, nChannels, nFrames)
	}

	if !r.cfg.CPUSavingEnabled {
		r.emitChannelLevels(soundID, as)
	}
}

// buildSpeakerList fills r.dbapSpeakers (reused across calls) with one
// entry per configured speaker for the given source-channel point,
// applying installation assignment and the proximity limit (spec
// §4.F.2.b, §4.C).
func (r *Renderer) buildSpeakerList(point model.Point, installationIDs []string) []dbap.Speaker {
	out := r.dbapSpeakers[:0]
	assignedToAll := len(installationIDs) == 0
	for _, sp := range r.speakers {
		servesAssigned := false
		if !assignedToAll {
			for _, id := range installationIDs {
				if sp.speaker.ServesInstallation(id) {
					servesAssigned = true
					break
				}
			}
		}

		weight := dbap.Weight(servesAssigned, assignedToAll)
		dx := point.X - sp.speaker.Point.X
		dy := point.Y - sp.speaker.Point.Y
		d2 := dbap.DistanceSquared(dx, dy, r.cfg.BlurMetres)
		distance := math.Sqrt(d2)

		if distance > r.cfg.ProximityLimitMetres {
			weight = 0
		}

		out = append(out, dbap.Speaker{Distance: distance, Weight: weight})
	}
	return out
}

func (r *Renderer) mixChannel(scratch []float32, c, channels int, gains []float64, out []float32, nChannels, nFrames int) {
	for t := 0; t < nFrames; t++ {
		sample := scratch[t*channels+c]
		if sample == 0 {
			continue
		}
		for si, sp := range r.speakers {
			gain := gains[si]
			if gain == 0 {
				continue
			}
			if sp.speaker.Channel < 0 || sp.speaker.Channel >= nChannels {
				continue
			}
			out[t*nChannels+sp.speaker.Channel] += sample * float32(gain*r.cfg.MasterVolume)
		}
	}
}

func (r *Renderer) emitChannelLevels(soundID string, as *activeSound) {
	for ch, det := range as.active.Envelopes {
		rms, peak := det.Current()
		r.postMonitor(SoundChannelLevel{SoundID: soundID, ChannelIndex: ch, RMS: rms, Peak: peak})
	}
}

// finishSpeakers feeds each speaker's final output samples into its
// envelope detector and emits its monitor message, then accumulates
// those samples into every installation the speaker serves (spec
// §4.F.3).
func (r *Renderer) finishSpeakers(out []float32, nChannels, nFrames int) {
	for si := range r.speakers {
		sp := &r.speakers[si]
		if sp.speaker.Channel < 0 || sp.speaker.Channel >= nChannels {
			continue
		}

		var rms, peak float64
		for t := 0; t < nFrames; t++ {
			sample := out[t*nChannels+sp.speaker.Channel]
			if !r.cfg.CPUSavingEnabled {
				rms, peak = sp.envelope.Next(sample)
			}

			for _, inst := range r.installations {
				if sp.speaker.ServesInstallation(inst.installation.ID) {
					inst.summed[t] += sample
				}
			}
		}

		if !r.cfg.CPUSavingEnabled {
			r.postMonitor(SpeakerLevel{SpeakerID: sp.speaker.ID, RMS: rms, Peak: peak})
		}
	}
}

// finishInstallations normalises each installation's summed buffer,
// pushes it into the FFT ring, and (for installations with at least
// one active assigned speaker and computer) emits an AudioFrameData
// message (spec §4.F.4).
func (r *Renderer) finishInstallations(nFrames int) {
	for _, inst := range r.installations {
		if len(inst.speakerIdx) == 0 || len(inst.installation.Computers) == 0 {
			continue
		}

		n := float32(len(inst.speakerIdx))
		for t := 0; t < nFrames; t++ {
			sample := inst.summed[t] / n
			inst.fftRing[inst.ringPos] = sample
			inst.ringPos++
			if inst.ringPos >= len(inst.fftRing) {
				inst.ringPos = 0
			}
			if inst.ringFill < len(inst.fftRing) {
				inst.ringFill++
			}
			inst.level.Next(sample)
		}

		if inst.ringFill < len(inst.fftRing) {
			continue
		}

		r.copyRingContiguous(inst)
		inst.fftEngine.Process(r.fftScratch, inst.ampSquared)

		lmh := fftengine.SummarizeLMH(inst.ampSquared, model.SampleRate, len(inst.fftRing))
		var mel [fftengine.MelBinCount]float64
		fftengine.SummarizeMel(inst.ampSquared, model.SampleRate, len(inst.fftRing), mel[:])

		perSpeaker := make([]SpeakerPeakRMS, 0, len(inst.speakerIdx))
		for _, si := range inst.speakerIdx {
			sp := r.speakers[si]
			rms, peak := sp.envelope.Current()
			perSpeaker = append(perSpeaker, SpeakerPeakRMS{ChannelIndex: sp.speaker.Channel, Peak: peak, RMS: rms})
		}

		avgRMS, avgPeak := inst.level.Current()
		r.postMonitor(AudioFrameData{
			InstallationID: inst.installation.ID,
			AvgPeak:        avgPeak,
			AvgRMS:         avgRMS,
			LMH:            lmh,
			Mel:            mel,
			PerSpeaker:     perSpeaker,
		})
	}
}

// copyRingContiguous copies inst.fftRing into r.fftScratch in
// chronological order (oldest sample first), since fftengine.Process
// expects a contiguous window rather than a wrapped ring.
func (r *Renderer) copyRingContiguous(inst *installationState) {
	n := copy(r.fftScratch, inst.fftRing[inst.ringPos:])
	copy(r.fftScratch[n:], inst.fftRing[:inst.ringPos])
}
