// Command conductor runs the spatial audio server's audio process: the
// WAV streaming service, the renderer, the soundscape scheduler, the
// analysis dispatcher, and their PCM device and telemetry endpoints,
// wired together and driven until an interrupt or SIGTERM arrives.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/analysis"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/conf"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/device"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/render"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundengine"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundscape"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/telemetry"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/wavstream"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string
	var logPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "conductor",
		Short: "Runs the spatial audio server's audio process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logPath, metricsAddr)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&logPath, "log-file", "conductor.log", "structured JSON log destination")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
	conf.BindFlags(cmd.PersistentFlags())

	return cmd
}

func run(configPath, logPath, metricsAddr string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = logging.LevelTrace
	}
	logging.Init(logPath, level)
	defer logging.Close()

	logger := logging.ForService("conductor")
	logger.Info("starting", "settings", settings.String())

	seed, err := randomSeed()
	if err != nil {
		return fmt.Errorf("generating rng seed: %w", err)
	}

	snap := demoSnapshot()

	renderCfg := render.Config{
		MasterVolume:         settings.Render.MasterVolume,
		RolloffDB:            settings.Render.DBAPRolloffDB,
		ProximityLimitMetres: settings.Render.ProximityLimitMetres,
		BlurMetres:           settings.Render.BlurMetres,
		CPUSavingEnabled:     settings.Render.CPUSavingEnabled,
		FFTWindowLength:      settings.Render.FFTWindowLength,
	}
	renderer := render.New(renderCfg, snap.Speakers, snap.Installations)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := wavstream.New(ctx)
	defer coordinator.Close()

	port := newRenderPort(coordinator, renderer, logger)
	port.updateSources(snap.Sources)
	registerRealtimeSources(port, snap.Sources, settings)

	controller := soundscape.NewController(seed, port)
	controller.UpdateSnapshot(snap)

	sender := telemetry.NewSender()
	dispatcher := analysis.NewDispatcher(renderer.Monitor(), sender, render.MonitorQueueCapacity)
	dispatcher.UpdateInstallations(snap.Installations)
	dispatcher.OnSoundEnded(controller.OnSoundEnded)
	dispatcher.OnSoundEnded(port.onSoundEnded)

	go dispatcher.Run(ctx)
	go drainGUI(ctx, dispatcher.GUI(), logger)

	metricsServer := startMetricsServer(metricsAddr, logger)
	defer shutdownMetricsServer(metricsServer, logger)

	playback, usingNullDevice := startPlaybackDevice(settings, renderer, logger)
	defer playback.stop(logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(soundscape.TickInterval)
	defer ticker.Stop()

	logger.Info("running", "using_null_device", usingNullDevice)

	last := time.Now()
	for {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			controller.Tick(dt)
		}
	}
}

func randomSeed() (soundscape.Seed, error) {
	var seed soundscape.Seed
	_, err := rand.Read(seed[:])
	return seed, err
}

// registerRealtimeSources wires each realtime source's channel range
// to its own RealtimeSignal sink. A production deployment would back
// each with a device.CaptureDevice opened on the matching input
// device; without physical capture hardware attached to this process,
// the signal is left registered but unfed, and Pull returns silence
// (spec §4.E: "An underrun produces silence").
func registerRealtimeSources(port *renderPort, sources []model.Source, settings *conf.Settings) {
	latencyFrames := settings.Realtime.SourceLatencyMS * model.SampleRate / 1000
	for _, src := range sources {
		if src.Kind != model.SourceRealtime {
			continue
		}
		signal := newRealtimeSignal(src.Realtime.Channels(), latencyFrames)
		port.registerRealtimeSignal(src.ID, signal)
	}
}

func drainGUI(ctx context.Context, gui <-chan any, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-gui:
			if !ok {
				return
			}
			// No GUI process is part of this module (spec: GUI is a
			// peripheral, externally owned consumer); this drain keeps
			// the channel from filling until one attaches.
			_ = msg
		}
	}
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	return srv
}

func shutdownMetricsServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
}

// playbackHandle abstracts over a real device.PlaybackDevice and the
// hardware-free device.NullDevice, so run() doesn't need two shutdown
// paths.
type playbackHandle struct {
	real *device.PlaybackDevice
}

func (h playbackHandle) stop(logger *slog.Logger) {
	if h.real == nil {
		return
	}
	if err := h.real.Stop(); err != nil {
		logger.Warn("error stopping playback device", "error", err)
	}
}

// startPlaybackDevice opens the configured PCM output device and
// drives it from the renderer's Render callback. If no playback
// hardware is available, the process still runs its full scheduling
// and analysis pipeline against a NullDevice pumped on a ticker, so it
// stays usable in headless/CI environments (spec: device enumeration
// and PCM handoff are peripheral to the core render/schedule logic).
func startPlaybackDevice(settings *conf.Settings, renderer *render.Renderer, logger *slog.Logger) (playbackHandle, bool) {
	cfg := device.PlaybackConfig{
		DeviceID:        settings.Device.PlaybackDeviceID,
		SampleRate:      uint32(settings.Audio.SampleRate),
		Channels:        settings.Audio.MaxChannels,
		FramesPerBuffer: uint32(settings.Audio.FramesPerBuffer),
	}

	pd, err := device.NewPlaybackDevice(cfg, renderer.Render)
	if err != nil {
		logger.Warn("no playback device available, running headless", "error", err)
		null := device.NewNullDevice(settings.Audio.MaxChannels, renderer.Render)
		go pumpNullDevice(null, settings.Audio.FramesPerBuffer)
		return playbackHandle{}, true
	}

	if err := pd.Start(); err != nil {
		logger.Warn("failed to start playback device, running headless", "error", err)
		null := device.NewNullDevice(settings.Audio.MaxChannels, renderer.Render)
		go pumpNullDevice(null, settings.Audio.FramesPerBuffer)
		return playbackHandle{}, true
	}

	return playbackHandle{real: pd}, false
}

// pumpNullDevice drives render callbacks at the same cadence a real
// device's hardware clock would, for headless operation.
func pumpNullDevice(n *device.NullDevice, framesPerBuffer int) {
	period := time.Duration(framesPerBuffer) * time.Second / time.Duration(model.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		n.Pump(framesPerBuffer)
	}
}

// newRealtimeSignal is a small wrapper picking a fixed mailbox depth,
// grounded on soundengine's own test fixtures (soundengine_test.go
// uses a handful of chunks per signal).
func newRealtimeSignal(channels, latencyFrames int) *soundengine.RealtimeSignal {
	const capacityChunks = 8
	return soundengine.NewRealtimeSignal(channels, latencyFrames, capacityChunks)
}
