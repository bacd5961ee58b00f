package wavstream

import "sync/atomic"

// Stream is the per-sound mailbox exposed to the renderer: a lazy
// sequence of mono samples, interleaved in source-channel order (spec
// §4.D). The renderer pulls samples; when a buffer empties, Stream
// hands it back to the coordinator to be refilled and requests the
// next one.
//
// Play returns a Stream before the file has finished decoding, so
// channels is set once by the coordinator after decode completes and
// read by the renderer on every Pull; it is the only field touched
// from both goroutines.
type Stream struct {
	coordinator *Coordinator
	soundID     string
	channels    atomic.Int32
	buffers     chan *Buffer

	current *Buffer
	readPos int // frame offset into current
}

func newStream(c *Coordinator, soundID string) *Stream {
	return &Stream{
		coordinator: c,
		soundID:     soundID,
		buffers:     make(chan *Buffer, NumBuffers),
	}
}

func (s *Stream) setChannels(n int) {
	s.channels.Store(int32(n))
}

// Channels reports the source channel count of the underlying WAV,
// or 0 if it has not finished decoding yet.
func (s *Stream) Channels() int {
	return int(s.channels.Load())
}

// Pull fills out with up to len(out)/channels frames of interleaved
// samples. It returns the number of interleaved samples written and
// whether the sound has reached its terminal end (a non-looping sound
// whose file is exhausted). If no decoded buffer is ready yet, the
// remainder of out is zero-filled and final is false: per spec §4.D,
// an underrun produces silence rather than terminating the sound.
func (s *Stream) Pull(out []float32) (n int, final bool) {
	channels := s.Channels()
	if channels == 0 {
		for i := range out {
			out[i] = 0
		}
		return 0, false
	}
	framesWanted := len(out) / channels

	written := 0
	for written < framesWanted {
		if s.current == nil {
			select {
			case buf := <-s.buffers:
				s.current = buf
				s.readPos = 0
			default:
			}
			if s.current == nil {
				break // underrun: leave the rest of out as silence
			}
		}

		avail := s.current.Frames - s.readPos
		if avail <= 0 {
			final = s.current.Final
			s.recycleCurrent()
			if final {
				break
			}
			continue
		}

		framesLeft := framesWanted - written
		take := avail
		if take > framesLeft {
			take = framesLeft
		}

		srcStart := s.readPos * channels
		dstStart := written * channels
		copy(out[dstStart:dstStart+take*channels], s.current.Samples[srcStart:srcStart+take*channels])

		s.readPos += take
		written += take

		if s.readPos >= s.current.Frames {
			final = s.current.Final
			s.recycleCurrent()
			if final {
				break
			}
		}
	}

	for i := written * channels; i < len(out); i++ {
		out[i] = 0
	}

	return written * channels, final
}

func (s *Stream) recycleCurrent() {
	buf := s.current
	s.current = nil
	s.readPos = 0
	if buf == nil {
		return
	}
	buf.Frames = 0
	buf.Final = false
	s.coordinator.NextBuffer(s.soundID, buf)
}

// Close tells the coordinator this sound is finished.
func (s *Stream) Close() {
	s.coordinator.End(s.soundID)
}
