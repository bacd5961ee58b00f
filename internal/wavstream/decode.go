package wavstream

import (
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/errors"
)

// wavIEEEFloatFormat is the WAVE_FORMAT_IEEE_FLOAT tag (spec §4.D: "32-bit float").
const wavIEEEFloatFormat = 3

// decodedWAV is an entire WAV file decoded once into normalised f32,
// interleaved in source-channel order. Sounds that share a wav_path
// share one decodedWAV through the coordinator's cache.
type decodedWAV struct {
	samples        []float32
	channels       int
	sampleRate     int
	durationFrames int
}

// decodeFile reads the entire PCM payload of the WAV file at path into
// memory and normalises every sample to f32 (spec §4.D bit-depth
// handling: 8/16/32-bit PCM and 32-bit float).
func decodeFile(path string) (*decodedWAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("wavstream").
			Category(errors.CategoryStreaming).
			Context("operation", "open_wav").
			Context("path", path).
			Build()
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("not a valid WAV file: %s", path).
			Component("wavstream").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}

	isFloat := decoder.WavAudioFormat == wavIEEEFloatFormat
	isUint8 := decoder.BitDepth == 8
	var divisor float32
	if !isFloat {
		switch decoder.BitDepth {
		case 8:
			divisor = 128.0
		case 16:
			divisor = 32768.0
		case 24:
			divisor = 8388608.0
		case 32:
			divisor = 2147483648.0
		default:
			return nil, errors.Newf("unsupported bit depth %d in %s", decoder.BitDepth, path).
				Component("wavstream").
				Category(errors.CategoryValidation).
				Context("path", path).
				Context("bit_depth", decoder.BitDepth).
				Build()
		}
	}

	const chunkFrames = 4096
	buf := &audio.IntBuffer{
		Data:   make([]int, chunkFrames*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	samples := make([]float32, 0, chunkFrames*channels)
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(err).
				Component("wavstream").
				Category(errors.CategoryDecode).
				Context("operation", "decode_wav_chunk").
				Context("path", path).
				Build()
		}
		if n == 0 {
			break
		}
		switch {
		case isFloat:
			for _, s := range buf.Data[:n] {
				samples = append(samples, math.Float32frombits(uint32(int32(s))))
			}
		case isUint8:
			// 8-bit PCM is conventionally unsigned with a 128 DC offset
			// (0-255 representing -1.0 to +1.0), unlike the signed
			// 16/24/32-bit paths below.
			for _, s := range buf.Data[:n] {
				samples = append(samples, (float32(s)-128.0)/divisor)
			}
		default:
			for _, s := range buf.Data[:n] {
				samples = append(samples, float32(s)/divisor)
			}
		}
	}

	durationFrames := 0
	if channels > 0 {
		durationFrames = len(samples) / channels
	}

	return &decodedWAV{
		samples:        samples,
		channels:       channels,
		sampleRate:     int(decoder.SampleRate),
		durationFrames: durationFrames,
	}, nil
}

// wavCache memoises decodeFile by path so sounds sharing a source file
// only pay the decode cost once.
type wavCache struct {
	mu    sync.Mutex
	byKey map[string]*decodedWAV
}

func newWAVCache() *wavCache {
	return &wavCache{byKey: make(map[string]*decodedWAV)}
}

func (c *wavCache) get(path string) (*decodedWAV, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.byKey[path]
	return w, ok
}

func (c *wavCache) put(path string, w *decodedWAV) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[path] = w
}
