// Package soundengine implements the Sound model (spec §4.E): the
// lazy per-channel sample signal every active sound exposes, and the
// envelope/volume/mute scalar applied to it before the renderer fans
// samples out to speakers.
package soundengine

// Signal is a lazy, monotonic stream of mono f32 samples interleaved
// across channels per frame, in source-channel order. Implementations:
// *wavstream.Stream for WAV sources, *RealtimeSignal for realtime
// sources.
type Signal interface {
	// Pull fills out with up to len(out)/channels frames. It returns
	// the number of interleaved samples written and whether the
	// signal has reached a terminal end. An underrun (not enough data
	// ready yet) zero-fills the remainder of out and reports false,
	// not a terminal end.
	Pull(out []float32) (n int, final bool)
}

// RealtimeSignal is the single-producer bounded mailbox for a
// realtime source (spec §4.E): the input device callback Pushes
// captured chunks, the renderer Pulls them. Overflow drops the
// incoming chunk; underrun produces silence.
type RealtimeSignal struct {
	channels int
	queue    chan []float32

	current []float32
	pos     int
}

// NewRealtimeSignal creates a RealtimeSignal for the given channel
// count. latencyFrames of silence are queued up front so the first
// Pulls decouple from the input device's fill rate instead of
// underrunning immediately (spec §4.E: "applied latency delay").
// capacityChunks bounds how many un-consumed Push chunks may queue
// before Push starts dropping.
func NewRealtimeSignal(channels, latencyFrames, capacityChunks int) *RealtimeSignal {
	if capacityChunks < 1 {
		capacityChunks = 1
	}
	rs := &RealtimeSignal{
		channels: channels,
		queue:    make(chan []float32, capacityChunks),
	}
	if latencyFrames > 0 {
		rs.queue <- make([]float32, latencyFrames*channels)
	}
	return rs
}

// Push enqueues a captured chunk of interleaved samples. If the queue
// is full, the chunk is dropped (spec §4.E: "drop on overflow").
func (r *RealtimeSignal) Push(chunk []float32) {
	select {
	case r.queue <- chunk:
	default:
	}
}

// Pull implements Signal. Realtime sources never report a terminal
// end; lifetime is governed by the owning Sound's
// total_duration_frames, not by the signal itself.
func (r *RealtimeSignal) Pull(out []float32) (n int, final bool) {
	written := 0
	for written < len(out) {
		if r.current == nil || r.pos >= len(r.current) {
			select {
			case c := <-r.queue:
				r.current = c
				r.pos = 0
			default:
				r.current = nil
			}
			if r.current == nil {
				break
			}
		}

		avail := len(r.current) - r.pos
		take := len(out) - written
		if take > avail {
			take = avail
		}
		copy(out[written:written+take], r.current[r.pos:r.pos+take])
		r.pos += take
		written += take
	}

	for i := written; i < len(out); i++ {
		out[i] = 0
	}
	return written, false
}
