// Package model holds the project data model shared across the audio,
// analysis, and soundscape workers (spec §3). Project state is owned by
// the control layer and published into workers by value over typed
// channels; these types are therefore plain data with small validation
// helpers, never back-pointers into owning collections.
package model

import (
	"math"

	"github.com/google/uuid"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/errors"
)

// MaxChannels is the hard ceiling on output channel index (spec §3, §6).
const MaxChannels = 32

// SampleRate is the fixed system sample rate in Hz (spec §6). No
// sample-rate conversion is performed anywhere in this system.
const SampleRate = 44100

// FramesPerBuffer is the fixed PCM callback size (spec §6).
const FramesPerBuffer = 64

// NewID generates a fresh unique identifier for sounds, sources, and
// other project entities.
func NewID() string {
	return uuid.NewString()
}

// Speaker is a physical loudspeaker at a fixed point on the floor.
type Speaker struct {
	ID             string
	Channel        int
	Point          Point
	InstallationID []string // installations this speaker serves
}

// ServesInstallation reports whether the speaker is assigned to installationID.
func (s Speaker) ServesInstallation(installationID string) bool {
	for _, id := range s.InstallationID {
		if id == installationID {
			return true
		}
	}
	return false
}

// Validate checks the invariants in spec §3: channel index must be in range.
func (s Speaker) Validate() error {
	if s.Channel < 0 || s.Channel >= MaxChannels {
		return errors.Newf("speaker channel %d out of range [0,%d)", s.Channel, MaxChannels).
			Component("model").
			Category(errors.CategoryValidation).
			Context("channel", s.Channel).
			Build()
	}
	return nil
}

// Computer is a remote rendering computer assigned to an installation,
// the destination for telemetry datagrams (spec §6).
type Computer struct {
	ID            string
	SocketAddr    string // host:port for general control, unused by telemetry itself
	TelemetryAddr string // host:port the OSC telemetry datagrams are sent to
}

// Installation is a logical destination comprising speakers and computers.
type Installation struct {
	ID                 string
	Name               string
	Computers          []Computer
	SimultaneousSounds IntRange
}

// Group is a named collection of sources sharing occurrence/concurrency
// constraints (spec §3, Glossary).
type Group struct {
	Name               string
	OccurrenceRateMS   Range
	SimultaneousSounds IntRange
}

// SourceKind is the closed variant of source types (spec §9).
type SourceKind int

const (
	SourceWAV SourceKind = iota
	SourceRealtime
)

func (k SourceKind) String() string {
	switch k {
	case SourceWAV:
		return "wav"
	case SourceRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// PlaybackMode controls how a WAV source is retriggered.
type PlaybackMode int

const (
	PlaybackRetrigger PlaybackMode = iota
	PlaybackContinuous
)

// SourceRole classifies what a source is used for.
type SourceRole int

const (
	RoleNone SourceRole = iota
	RoleSoundscape
	RoleInstallation
	RoleScribbles
)

// WAVSourceConfig describes a pre-recorded WAV source.
type WAVSourceConfig struct {
	Path           string
	SampleRate     int
	Channels       int
	DurationFrames int64
	ShouldLoop     bool
	Mode           PlaybackMode
}

// Validate checks that the WAV source's sample rate matches the system
// rate (spec §3: "WAV sample rate must equal the system rate").
func (c WAVSourceConfig) Validate() error {
	if c.SampleRate != SampleRate {
		return errors.Newf("wav source sample rate %d does not match system rate %d", c.SampleRate, SampleRate).
			Component("model").
			Category(errors.CategoryValidation).
			Context("path", c.Path).
			Build()
	}
	if c.Channels < 1 {
		return errors.Newf("wav source must have at least 1 channel, got %d", c.Channels).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// RealtimeSourceConfig describes a contiguous channel range on an input device.
type RealtimeSourceConfig struct {
	DeviceID           string
	ChannelStart       int
	ChannelEnd         int // exclusive
	PlaybackDurationMS int
}

// Channels returns the number of channels this realtime source exposes.
func (c RealtimeSourceConfig) Channels() int {
	if c.ChannelEnd <= c.ChannelStart {
		return 0
	}
	return c.ChannelEnd - c.ChannelStart
}

// MovementKind is the closed variant of movement strategies (spec §4.I, §9).
type MovementKind int

const (
	MovementFixed MovementKind = iota
	MovementAgent
	MovementNgon
)

// FixedDescriptor places a sound at a fixed normalized point within its
// installation's bounding rect.
type FixedDescriptor struct {
	NormalizedPoint Point
}

// AgentDescriptor configures an autonomous steering agent.
type AgentDescriptor struct {
	MaxSpeed    Range
	MaxForce    Range
	MaxRotation Range // radians/sec
	Directional bool
}

// NgonDescriptor configures an n-gon path tracer.
type NgonDescriptor struct {
	Vertices             int
	Nth                  int
	NormalizedDimensions Point // scales the installation's bounding rect, each axis in [0,1]
	RadiansOffset        float64
	Speed                Range // metres/sec
}

// MovementDescriptor is a tagged union over the three movement strategies.
type MovementDescriptor struct {
	Kind  MovementKind
	Fixed FixedDescriptor
	Agent AgentDescriptor
	Ngon  NgonDescriptor
}

// SoundscapeConstraints are the per-source scheduling constraints that
// apply only to sources with Role == RoleSoundscape.
type SoundscapeConstraints struct {
	Installations          []string
	Groups                 []string
	OccurrenceRateMS       Range
	SimultaneousSounds     IntRange
	PlaybackDurationFrames Range
	AttackFrames           Range
	ReleaseFrames          Range
	Movement               MovementDescriptor
}

// Source is a definition from which Sounds are instantiated (spec §3).
type Source struct {
	ID       string
	Name     string
	Kind     SourceKind
	WAV      WAVSourceConfig
	Realtime RealtimeSourceConfig

	Role          SourceRole
	Spread        float64
	ChannelRadians float64
	Volume        float64
	Muted         bool

	Soundscape SoundscapeConstraints
}

// Channels returns the number of source channels for this source.
func (s Source) Channels() int {
	switch s.Kind {
	case SourceWAV:
		return s.WAV.Channels
	case SourceRealtime:
		return s.Realtime.Channels()
	default:
		return 0
	}
}

// AssignedToInstallation reports whether this soundscape source may be
// spawned for the given installation. An empty assignment list means
// "all installations" per spec §4.F.
func (s Source) AssignedToInstallation(installationID string) bool {
	if len(s.Soundscape.Installations) == 0 {
		return true
	}
	for _, id := range s.Soundscape.Installations {
		if id == installationID {
			return true
		}
	}
	return false
}

// Validate checks source-level invariants (spec §3, §8).
func (s Source) Validate() error {
	if s.Channels() < 1 {
		return errors.Newf("source %q must have at least 1 channel", s.ID).
			Component("model").
			Category(errors.CategoryValidation).
			Context("source_id", s.ID).
			Build()
	}
	if s.Spread < 0 {
		return errors.Newf("source %q spread must be >= 0, got %f", s.ID, s.Spread).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Kind == SourceWAV {
		if err := s.WAV.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Sound is a playing instance of a Source (spec §3, §4.E).
type Sound struct {
	ID       string
	SourceID string
	Channels int

	Position Point
	Radians  float64

	Spread               float64
	ChannelRadiansOffset float64

	Volume float64
	Muted  bool

	// TotalDurationFrames of 0 means unlimited (runs until the signal
	// iterator exhausts itself or is explicitly removed).
	TotalDurationFrames int64
	AttackFrames        int64
	ReleaseFrames       int64

	SpawnFrame        int64
	ContinuousPreview bool
}

// Validate checks the sound-level invariants from spec §3:
// attack_frames + release_frames <= total_duration_frames when a
// duration is set; channels >= 1; spread >= 0.
func (s Sound) Validate() error {
	if s.Channels < 1 {
		return errors.Newf("sound %q must have at least 1 channel", s.ID).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Spread < 0 {
		return errors.Newf("sound %q spread must be >= 0", s.ID).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.TotalDurationFrames > 0 && s.AttackFrames+s.ReleaseFrames > s.TotalDurationFrames {
		return errors.Newf("sound %q attack+release frames (%d) exceed total duration (%d)",
			s.ID, s.AttackFrames+s.ReleaseFrames, s.TotalDurationFrames).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// ChannelPoint returns the absolute position of source-channel i out of
// n total channels, per spec §4.E: channel i sits on a circle of radius
// Spread around Position, at angle Radians + ChannelRadiansOffset +
// (i/n)*2*pi.
func (s Sound) ChannelPoint(i, n int) Point {
	if n <= 0 {
		n = 1
	}
	angle := s.Radians + s.ChannelRadiansOffset + (float64(i)/float64(n))*2*math.Pi
	return PointOnCircle(s.Position, s.Spread, angle)
}
