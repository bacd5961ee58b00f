package main

import (
	"log/slog"
	"sync"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/render"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundengine"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundscape"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/wavstream"
)

var _ soundscape.RenderPort = (*renderPort)(nil)

// renderPort implements soundscape.RenderPort, translating the
// controller's spawn/move calls into the WAV streaming service and the
// renderer. It also owns the bookkeeping the controller doesn't need
// to know about: which sound IDs are backed by a WAV stream that must
// be closed when the sound ends, and which source IDs a realtime
// capture device has already registered a signal for.
type renderPort struct {
	coordinator *wavstream.Coordinator
	renderer    *render.Renderer
	logger      *slog.Logger

	mu              sync.Mutex
	sourcesByID     map[string]model.Source
	realtimeSignals map[string]*soundengine.RealtimeSignal
	streams         map[string]*wavstream.Stream
}

func newRenderPort(coordinator *wavstream.Coordinator, renderer *render.Renderer, logger *slog.Logger) *renderPort {
	return &renderPort{
		coordinator:     coordinator,
		renderer:        renderer,
		logger:          logger,
		sourcesByID:     make(map[string]model.Source),
		realtimeSignals: make(map[string]*soundengine.RealtimeSignal),
		streams:         make(map[string]*wavstream.Stream),
	}
}

// updateSources refreshes the source registry used to resolve a
// sound's installation assignment at spawn time (spec §5: project
// state is replicated by value, not referenced live).
func (p *renderPort) updateSources(sources []model.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fresh := make(map[string]model.Source, len(sources))
	for _, s := range sources {
		fresh[s.ID] = s
	}
	p.sourcesByID = fresh
}

// registerRealtimeSignal binds a realtime source ID to the signal a
// capture device (or a headless stand-in) feeds, so SpawnRealtime can
// hand it to the renderer.
func (p *renderPort) registerRealtimeSignal(sourceID string, signal *soundengine.RealtimeSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realtimeSignals[sourceID] = signal
}

func (p *renderPort) installationIDsFor(sourceID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok := p.sourcesByID[sourceID]; ok {
		return src.Soundscape.Installations
	}
	return nil
}

func (p *renderPort) PositionUpdate(soundID string, pos model.Point, radians float64) {
	p.renderer.PositionUpdate(soundID, pos, radians)
}

func (p *renderPort) SpawnWAV(sound model.Sound, sourceID, wavPath string, looped bool) {
	stream := p.coordinator.Play(sound.ID, wavPath, int(sound.SpawnFrame), looped)
	installationIDs := p.installationIDsFor(sourceID)
	if err := p.renderer.Spawn(sound, installationIDs, stream); err != nil {
		p.logger.Warn("spawn wav sound rejected", "sound_id", sound.ID, "source_id", sourceID, "error", err)
		p.coordinator.End(sound.ID)
		return
	}

	p.mu.Lock()
	p.streams[sound.ID] = stream
	p.mu.Unlock()
}

func (p *renderPort) SpawnRealtime(sound model.Sound, sourceID string) {
	p.mu.Lock()
	signal, ok := p.realtimeSignals[sourceID]
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("no realtime signal registered for source", "source_id", sourceID)
		return
	}

	installationIDs := p.installationIDsFor(sourceID)
	if err := p.renderer.Spawn(sound, installationIDs, signal); err != nil {
		p.logger.Warn("spawn realtime sound rejected", "sound_id", sound.ID, "source_id", sourceID, "error", err)
	}
}

// onSoundEnded releases any WAV stream owned by soundID. Registered as
// one of analysis.Dispatcher's OnSoundEnded hooks.
func (p *renderPort) onSoundEnded(soundID string) {
	p.mu.Lock()
	_, ok := p.streams[soundID]
	delete(p.streams, soundID)
	p.mu.Unlock()

	if ok {
		p.coordinator.End(soundID)
	}
}
