// Package conf loads the conductor process's Settings via viper:
// defaults, an optional YAML config file, and environment variable
// overrides under the CONDUCTOR_ prefix, in that precedence order.
package conf

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/errors"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/fftengine"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// AudioSettings mirrors spec §6's fixed PCM parameters plus the
// per-process knobs layered on top of them.
type AudioSettings struct {
	SampleRate      int
	FramesPerBuffer int
	MaxChannels     int
}

// RenderSettings configures internal/render.Config (spec §4.F).
type RenderSettings struct {
	MasterVolume         float64
	DBAPRolloffDB        float64
	ProximityLimitMetres float64
	BlurMetres           float64
	CPUSavingEnabled     bool
	FFTWindowLength      int
	RMSWindowFrames      int
}

// RealtimeSettings configures realtime capture source latency
// (spec §4.C / §4.E).
type RealtimeSettings struct {
	SourceLatencyMS int
}

// TelemetrySettings holds the telemetry coalescing window (spec §4.G).
// It is loaded and validated only: internal/analysis throttles with its
// own fixed CoalesceWindow constant and does not read this value.
type TelemetrySettings struct {
	CoalesceWindow time.Duration
}

// DeviceSettings names the PCM playback device to open (spec §6).
type DeviceSettings struct {
	PlaybackDeviceID string
}

// Settings is the conductor process's fully resolved configuration.
type Settings struct {
	Debug     bool
	Audio     AudioSettings
	Render    RenderSettings
	Realtime  RealtimeSettings
	Telemetry TelemetrySettings
	Device    DeviceSettings
}

// EnvPrefix is the environment variable namespace every setting is
// also overridable under, e.g. CONDUCTOR_RENDER_MASTERVOLUME.
const EnvPrefix = "CONDUCTOR"

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.samplerate", model.SampleRate)
	v.SetDefault("audio.framesperbuffer", model.FramesPerBuffer)
	v.SetDefault("audio.maxchannels", model.MaxChannels)

	v.SetDefault("render.mastervolume", 1.0)
	v.SetDefault("render.dbaprolloffdb", 6.0)
	v.SetDefault("render.proximitylimitmetres", math.Inf(1))
	v.SetDefault("render.blurmetres", 0.001)
	v.SetDefault("render.cpusavingenabled", false)
	v.SetDefault("render.fftwindowlength", fftengine.DefaultWindowLength)
	v.SetDefault("render.rmswindowframes", model.SampleRate/60)

	v.SetDefault("realtime.sourcelatencyms", 100)

	v.SetDefault("telemetry.coalescewindow", "16ms")

	v.SetDefault("device.playbackdeviceid", "default")
}

// Load resolves Settings from defaults, an optional config file at
// configPath (skipped if empty or not found), and CONDUCTOR_-prefixed
// environment variables, in ascending precedence.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.New(err).
					Component("conf").
					Category(errors.CategoryConfiguration).
					Context("config_path", configPath).
					Build()
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// BindFlags registers the subset of Settings a CLI invocation may
// reasonably override as pflags, grounded on the teacher's
// cobra+pflag command wiring (cmd/realtime's flag registration). The
// flags are only registered: Load does not bind or read them, so their
// values do not reach Settings.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("device.playbackdeviceid", "default", "PCM output device ID, or \"default\"")
	flags.Float64("render.mastervolume", 1.0, "master output volume multiplier")
	flags.Bool("debug", false, "enable debug logging")
}

func validate(s *Settings) error {
	if s.Audio.SampleRate != model.SampleRate {
		return errors.Newf("configured sample rate %d does not match system rate %d", s.Audio.SampleRate, model.SampleRate).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Audio.MaxChannels <= 0 || s.Audio.MaxChannels > model.MaxChannels {
		return errors.Newf("max_channels %d out of range [1,%d]", s.Audio.MaxChannels, model.MaxChannels).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Render.MasterVolume < 0 {
		return errors.Newf("master_volume must be non-negative, got %v", s.Render.MasterVolume).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Render.FFTWindowLength <= 0 || s.Render.FFTWindowLength&(s.Render.FFTWindowLength-1) != 0 {
		return errors.Newf("fft_window_length must be a power of two, got %d", s.Render.FFTWindowLength).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Telemetry.CoalesceWindow <= 0 {
		return errors.Newf("telemetry coalesce window must be positive, got %s", s.Telemetry.CoalesceWindow).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// String renders Settings for startup logging.
func (s *Settings) String() string {
	return fmt.Sprintf(
		"sample_rate=%d frames_per_buffer=%d max_channels=%d master_volume=%.2f dbap_rolloff_db=%.1f fft_window_length=%d playback_device=%q",
		s.Audio.SampleRate, s.Audio.FramesPerBuffer, s.Audio.MaxChannels,
		s.Render.MasterVolume, s.Render.DBAPRolloffDB, s.Render.FFTWindowLength,
		s.Device.PlaybackDeviceID,
	)
}
