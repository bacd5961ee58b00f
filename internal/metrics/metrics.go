// Package metrics exposes Prometheus collectors for the renderer's
// audio callback, the WAV streaming pipeline, the soundscape
// scheduler, and telemetry delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conductor_render_duration_seconds",
		Help:    "Time spent in one audio callback's Render call",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01},
	})

	activeSounds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conductor_active_sounds",
		Help: "Number of sounds currently registered with the renderer",
	})

	wavBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conductor_wav_buffer_depth",
		Help: "Pre-rolled buffer count queued for a WAV stream",
	}, []string{"sound_id"})

	wavDecodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_wav_decodes_total",
		Help: "Total number of distinct WAV files decoded",
	})

	soundscapeSpawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_soundscape_spawns_total",
		Help: "Total number of sounds spawned by the soundscape scheduler",
	}, []string{"installation_id", "kind"})

	soundscapeTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conductor_soundscape_tick_duration_seconds",
		Help:    "Time spent in one soundscape Tick call",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	telemetrySendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_telemetry_sends_total",
		Help: "Total OSC datagrams sent, by outcome",
	}, []string{"outcome"}) // "ok" or "error"

	telemetryCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_telemetry_coalesced_total",
		Help: "AudioFrameData messages suppressed by the coalescing window or dedup check",
	})
)

// RecordRender records one callback's Render duration.
func RecordRender(d time.Duration) {
	renderDuration.Observe(d.Seconds())
}

// SetActiveSounds reports the renderer's current active-sound count.
func SetActiveSounds(n int) {
	activeSounds.Set(float64(n))
}

// SetWAVBufferDepth reports a stream's current pre-roll buffer depth.
func SetWAVBufferDepth(soundID string, depth int) {
	wavBufferDepth.WithLabelValues(soundID).Set(float64(depth))
}

// RemoveWAVBufferDepth drops a finished sound's gauge series so the
// label cardinality doesn't grow unbounded over a long run.
func RemoveWAVBufferDepth(soundID string) {
	wavBufferDepth.DeleteLabelValues(soundID)
}

// IncWAVDecodes records a fresh WAV file decode.
func IncWAVDecodes() {
	wavDecodesTotal.Inc()
}

// RecordSoundscapeSpawn records a scheduler-initiated spawn.
func RecordSoundscapeSpawn(installationID, kind string) {
	soundscapeSpawnsTotal.WithLabelValues(installationID, kind).Inc()
}

// RecordSoundscapeTick records one Tick call's duration.
func RecordSoundscapeTick(d time.Duration) {
	soundscapeTickDuration.Observe(d.Seconds())
}

// RecordTelemetrySend records the outcome of one OSC send attempt.
func RecordTelemetrySend(ok bool) {
	if ok {
		telemetrySendsTotal.WithLabelValues("ok").Inc()
		return
	}
	telemetrySendsTotal.WithLabelValues("error").Inc()
}

// IncTelemetryCoalesced records a suppressed AudioFrameData message.
func IncTelemetryCoalesced() {
	telemetryCoalescedTotal.Inc()
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
