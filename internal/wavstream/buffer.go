package wavstream

import "github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"

// NumBuffers is the bounded pre-roll depth maintained per active WAV
// sound (spec §4.D).
const NumBuffers = 4

// Buffer is one pre-decoded chunk of interleaved, normalised f32
// samples for a sound with a fixed channel count. Buffers are reused:
// the renderer hands an emptied Buffer back to the coordinator as the
// "recycled" argument of a NextBuffer message instead of allocating a
// fresh one.
type Buffer struct {
	Samples []float32 // len == model.FramesPerBuffer * channels
	Frames  int       // valid frames in Samples, <= model.FramesPerBuffer
	Final   bool      // true once a non-looped sound has no more data
}

// NewBuffer allocates a Buffer sized for channels source channels.
func NewBuffer(channels int) *Buffer {
	return &Buffer{Samples: make([]float32, model.FramesPerBuffer*channels)}
}
