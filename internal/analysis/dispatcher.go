// Package analysis runs the dispatcher thread of spec §4.G: it drains
// the renderer's monitor channel, forwards every message to a
// GUI-bound bounded channel unmodified, and additionally coalesces
// AudioFrameData messages per installation before handing them to the
// telemetry subsystem.
package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/render"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/telemetry"
)

// CoalesceWindow is the minimum spacing between two telemetry
// datagrams for the same installation (spec §4.G / §8 scenario 6: "no
// two telemetry datagrams for the same installation are sent within
// the same 16ms window").
const CoalesceWindow = 16 * time.Millisecond

// sender is the subset of telemetry.Sender the dispatcher depends on,
// so tests can substitute a recorder without opening real sockets.
type sender interface {
	Send(computers []model.Computer, frame render.AudioFrameData)
}

var _ sender = (*telemetry.Sender)(nil)

// Dispatcher owns the GUI-facing bounded channel and the telemetry
// coalescing state. It has no opinion on how the renderer's monitor
// channel is produced, only on how its messages are fanned out.
type Dispatcher struct {
	monitor <-chan any
	sender  sender
	gui     chan any
	logger  *slog.Logger

	mu            sync.Mutex
	installations map[string][]model.Computer
	lastPayload   map[string]render.AudioFrameData
	lastSent      map[string]time.Time

	soundEndedMu sync.RWMutex
	soundEnded   []func(soundID string)
}

// NewDispatcher builds a Dispatcher reading from monitor and sending
// telemetry through sender. guiCapacity bounds the GUI channel; once
// full, the dispatcher drops messages rather than block the monitor
// drain loop (spec §5: no thread may suspend behind the GUI).
func NewDispatcher(monitor <-chan any, snd sender, guiCapacity int) *Dispatcher {
	return &Dispatcher{
		monitor:       monitor,
		sender:        snd,
		gui:           make(chan any, guiCapacity),
		logger:        logging.ForService("analysis"),
		installations: make(map[string][]model.Computer),
		lastPayload:   make(map[string]render.AudioFrameData),
		lastSent:      make(map[string]time.Time),
	}
}

// GUI returns the channel the GUI layer (or a test) should drain.
func (d *Dispatcher) GUI() <-chan any {
	return d.gui
}

// UpdateInstallations refreshes the installation-ID to computer-list
// mapping the dispatcher consults to route telemetry. Called whenever
// the project snapshot changes, same as soundscape.Controller.UpdateSnapshot.
func (d *Dispatcher) UpdateInstallations(installations []model.Installation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh := make(map[string][]model.Computer, len(installations))
	for _, inst := range installations {
		fresh[inst.ID] = inst.Computers
	}
	d.installations = fresh
}

// OnSoundEnded registers fn to be called, outside the dispatcher's own
// lock, whenever a render.SoundEnded message is observed. Multiple
// subscribers may register (the soundscape controller's activeCount
// bookkeeping and a WAV stream's coordinator-state release are both
// downstream of the same event, and neither is this package's
// business to own directly).
func (d *Dispatcher) OnSoundEnded(fn func(soundID string)) {
	d.soundEndedMu.Lock()
	defer d.soundEndedMu.Unlock()
	d.soundEnded = append(d.soundEnded, fn)
}

// Run drains the monitor channel until ctx is cancelled or the
// channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.monitor:
			if !ok {
				return
			}
			d.handle(msg)
		}
	}
}

func (d *Dispatcher) handle(msg any) {
	switch m := msg.(type) {
	case render.AudioFrameData:
		d.postGUI(m)
		d.handleAudioFrame(m)
	case render.SoundEnded:
		d.postGUI(m)
		d.notifySoundEnded(m.SoundID)
	default:
		d.postGUI(msg)
	}
}

func (d *Dispatcher) notifySoundEnded(soundID string) {
	d.soundEndedMu.RLock()
	hooks := append([]func(string){}, d.soundEnded...)
	d.soundEndedMu.RUnlock()

	for _, fn := range hooks {
		fn(soundID)
	}
}

func (d *Dispatcher) postGUI(msg any) {
	select {
	case d.gui <- msg:
	default:
		d.logger.Warn("gui channel full, dropping monitor message")
	}
}

// handleAudioFrame applies the telemetry coalescing policy: a frame is
// sent at most once per CoalesceWindow per installation, and never
// sent if it is bit-identical to the last frame actually transmitted
// for that installation (spec §4.G, §8 scenario 6).
func (d *Dispatcher) handleAudioFrame(frame render.AudioFrameData) {
	d.mu.Lock()

	computers, known := d.installations[frame.InstallationID]
	if !known {
		d.mu.Unlock()
		return
	}

	last, hadLast := d.lastSent[frame.InstallationID]
	due := !hadLast || time.Since(last) >= CoalesceWindow
	if !due {
		d.mu.Unlock()
		metrics.IncTelemetryCoalesced()
		return
	}

	if prev, ok := d.lastPayload[frame.InstallationID]; ok && framesEqual(prev, frame) {
		d.mu.Unlock()
		metrics.IncTelemetryCoalesced()
		return
	}

	d.lastPayload[frame.InstallationID] = frame
	d.lastSent[frame.InstallationID] = time.Now()
	d.mu.Unlock()

	d.sender.Send(computers, frame)
}

func framesEqual(a, b render.AudioFrameData) bool {
	if a.AvgPeak != b.AvgPeak || a.AvgRMS != b.AvgRMS || a.LMH != b.LMH || a.Mel != b.Mel {
		return false
	}
	if len(a.PerSpeaker) != len(b.PerSpeaker) {
		return false
	}
	for i := range a.PerSpeaker {
		if a.PerSpeaker[i] != b.PerSpeaker[i] {
			return false
		}
	}
	return true
}
