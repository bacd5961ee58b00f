// Package fftengine implements the fixed-window spectral analysis used
// for per-installation telemetry (spec §4.B): a windowed real FFT, a
// low/mid/high band summary, and an 8-bin mel-spaced summary. The FFT
// itself is delegated to gonum's real-input FFT, with a planner cache
// keyed by window length so repeated calls at the same N reuse their
// twiddle factors.
package fftengine

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultWindowLength is N in spec §4.B.
const DefaultWindowLength = 1024

// MelBinCount is the number of output mel bins (spec §4.B).
const MelBinCount = 8

var (
	plannerMu sync.Mutex
	planners  = map[int]*fourier.FFT{}
)

func plannerFor(n int) *fourier.FFT {
	plannerMu.Lock()
	defer plannerMu.Unlock()
	if p, ok := planners[n]; ok {
		return p
	}
	p := fourier.NewFFT(n)
	planners[n] = p
	return p
}

// Engine performs windowed FFT analysis with a fixed window length N.
// It keeps a complex scratch buffer reused across calls; Process is not
// safe to call concurrently on the same Engine (each caller -- one per
// installation or per sound -- should own its own Engine).
type Engine struct {
	n        int
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
}

// New creates an Engine with window length n (spec §4.B default 1024).
func New(n int) *Engine {
	return &Engine{
		n:        n,
		fft:      plannerFor(n),
		windowed: make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
	}
}

// Process copies input (the most recent N mono samples) into the
// engine's scratch buffer, runs the FFT, and writes amp^2 = re^2 + im^2
// for bins 0..N/2 into out, which must have length N/2+1.
func (e *Engine) Process(input []float32, out []float64) {
	n := e.n
	for i := 0; i < n && i < len(input); i++ {
		e.windowed[i] = float64(input[i])
	}
	for i := len(input); i < n; i++ {
		e.windowed[i] = 0
	}

	coeffs := e.fft.Coefficients(e.coeffs, e.windowed)
	for i := 0; i <= n/2 && i < len(coeffs); i++ {
		c := coeffs[i]
		re := real(c)
		im := imag(c)
		out[i] = re*re + im*im
	}
}

// BinHz returns the Hz step between adjacent bins for window length n
// at the given sample rate (spec §4.B: sample_rate / (2*N)).
func BinHz(sampleRate, n int) float64 {
	return float64(sampleRate) / (2 * float64(n))
}

// LMH is the low/mid/high three-band spectral summary (spec §4.B,
// Glossary: LMH).
type LMH struct {
	Low, Mid, High float64
}

// SummarizeLMH computes the low/mid/high summary from amp^2 bins.
// Low = max over bins whose upper-edge Hz < 200; Mid = max over bins
// whose upper-edge < 2000 and >= 200; High = max over the rest.
func SummarizeLMH(ampSquared []float64, sampleRate, n int) LMH {
	step := BinHz(sampleRate, n)
	var lmh LMH
	for bin, v := range ampSquared {
		upperEdge := step * float64(bin+1)
		switch {
		case upperEdge < 200:
			lmh.Low = math.Max(lmh.Low, v)
		case upperEdge < 2000:
			lmh.Mid = math.Max(lmh.Mid, v)
		default:
			lmh.High = math.Max(lmh.High, v)
		}
	}
	return lmh
}

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// SummarizeMel computes MelBinCount output bins from amp^2 bins, per
// spec §4.B: output bin i covers frequencies up to
// mel^-1(((i+1)/8)^2 * mel(sample_rate/2)); each output bin takes the
// max amp^2 of input bins whose upper edge falls in its range. out must
// have length MelBinCount and is zeroed before accumulation.
func SummarizeMel(ampSquared []float64, sampleRate, n int, out []float64) {
	for i := range out {
		out[i] = 0
	}

	nyquistMel := hzToMel(float64(sampleRate) / 2)
	var edges [MelBinCount]float64
	for i := 0; i < MelBinCount; i++ {
		frac := float64(i+1) / float64(MelBinCount)
		edges[i] = melToHz(frac * frac * nyquistMel)
	}

	step := BinHz(sampleRate, n)
	for bin, v := range ampSquared {
		upperEdge := step * float64(bin+1)
		for i := 0; i < MelBinCount; i++ {
			if upperEdge <= edges[i] {
				if v > out[i] {
					out[i] = v
				}
				break
			}
		}
	}
}
