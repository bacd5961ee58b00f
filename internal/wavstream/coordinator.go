// Package wavstream implements the WAV streaming service (spec §4.D):
// a single coordinator goroutine plus a fixed worker pool decodes WAV
// files and keeps a bounded pre-roll of sample buffers per active
// sound, so the audio callback never blocks on disk or decode work.
package wavstream

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
)

// minWorkers is the floor on pool size regardless of hardware thread
// count (spec §4.D: "one worker per available hardware thread, minimum 2").
const minWorkers = 2

// Coordinator owns all WAV-sound state and is only ever mutated from
// its own run loop; everything else talks to it over commands.
type Coordinator struct {
	commands chan any
	jobs     chan func()
	cache    *wavCache
	sounds   map[string]*soundState
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type soundState struct {
	wav       *decodedWAV
	posFrames int
	looped    bool
	busy      bool
	pending   []*Buffer
	stream    *Stream
}

// New starts a Coordinator with a worker pool sized to the host, and
// returns it already running.
func New(ctx context.Context) *Coordinator {
	workers := runtime.NumCPU()
	if workers < minWorkers {
		workers = minWorkers
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		commands: make(chan any, 256),
		jobs:     make(chan func(), 256),
		cache:    newWAVCache(),
		sounds:   make(map[string]*soundState),
		logger:   logging.ForService("wavstream"),
		ctx:      cctx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.workerLoop()
	}

	c.wg.Add(1)
	go c.runLoop()

	return c
}

func (c *Coordinator) workerLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case fn, ok := <-c.jobs:
			if !ok {
				return
			}
			fn()
		}
	}
}

// Play queues a decode task for soundID at wav_path, starting at
// startFrame modulo the file's duration (spec §4.D Play message), and
// returns the sound's mailbox immediately. The stream produces silence
// until decode completes and the first NumBuffers fills land.
func (c *Coordinator) Play(soundID, wavPath string, startFrame int, looped bool) *Stream {
	st := newStream(c, soundID)
	c.send(cmdPlay{SoundID: soundID, Path: wavPath, StartFrame: startFrame, Looped: looped, Stream: st})
	return st
}

// NextBuffer hands a recycled buffer back for refill (spec §4.D
// NextBuffer message).
func (c *Coordinator) NextBuffer(soundID string, recycled *Buffer) {
	c.send(cmdNextBuffer{SoundID: soundID, Recycled: recycled})
}

// End drops soundID's streaming state and its buffer-depth metric
// (spec §4.D End message). The WAV file itself was already closed once
// it was decoded.
func (c *Coordinator) End(soundID string) {
	c.send(cmdEnd{SoundID: soundID})
}

// Close terminates the coordinator's run loop and worker pool (spec
// §4.D Exit message).
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) send(cmd any) {
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

type cmdPlay struct {
	SoundID    string
	Path       string
	StartFrame int
	Looped     bool
	Stream     *Stream
}

type cmdPlayComplete struct {
	SoundID string
	WAV     *decodedWAV
	Err     error
}

type cmdNextBuffer struct {
	SoundID  string
	Recycled *Buffer
}

type cmdNextBufferComplete struct {
	SoundID string
	Buf     *Buffer
	NewPos  int
	Err     error
}

type cmdEnd struct {
	SoundID string
}

func (c *Coordinator) runLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.commands:
			switch m := cmd.(type) {
			case cmdPlay:
				c.handlePlay(m)
			case cmdPlayComplete:
				c.handlePlayComplete(m)
			case cmdNextBuffer:
				c.handleNextBuffer(m)
			case cmdNextBufferComplete:
				c.handleNextBufferComplete(m)
			case cmdEnd:
				c.handleEnd(m)
			}
		}
	}
}

func (c *Coordinator) handlePlay(m cmdPlay) {
	// Stash a placeholder state immediately so handlePlayComplete can
	// recover StartFrame/Looped whether the cache hits synchronously or
	// a worker reports back later.
	c.sounds[m.SoundID] = &soundState{looped: m.Looped, posFrames: m.StartFrame, stream: m.Stream}

	if w, ok := c.cache.get(m.Path); ok {
		c.handlePlayComplete(cmdPlayComplete{SoundID: m.SoundID, WAV: w})
		return
	}

	path := m.Path
	soundID := m.SoundID
	c.submit(func() {
		w, err := decodeFile(path)
		if err == nil {
			c.cache.put(path, w)
			metrics.IncWAVDecodes()
		}
		c.postResult(cmdPlayComplete{SoundID: soundID, WAV: w, Err: err})
	})
}

func (c *Coordinator) handlePlayComplete(m cmdPlayComplete) {
	st, ok := c.sounds[m.SoundID]
	if !ok {
		return // End arrived before decode finished
	}
	if m.Err != nil {
		c.logger.Warn("wav decode failed", "sound_id", m.SoundID, "error", m.Err)
		delete(c.sounds, m.SoundID)
		return
	}

	st.wav = m.WAV
	if m.WAV.durationFrames > 0 {
		st.posFrames = st.posFrames % m.WAV.durationFrames
	} else {
		st.posFrames = 0
	}
	st.stream.setChannels(m.WAV.channels)

	for i := 0; i < NumBuffers; i++ {
		c.handleNextBuffer(cmdNextBuffer{SoundID: m.SoundID, Recycled: NewBuffer(m.WAV.channels)})
	}
}

func (c *Coordinator) handleNextBuffer(m cmdNextBuffer) {
	st, ok := c.sounds[m.SoundID]
	if !ok || st.wav == nil {
		return
	}
	if st.busy {
		st.pending = append(st.pending, m.Recycled)
		return
	}

	st.busy = true
	wav := st.wav
	pos := st.posFrames
	looped := st.looped
	buf := m.Recycled
	soundID := m.SoundID

	c.submit(func() {
		newPos := fillBuffer(wav, pos, looped, buf)
		c.postResult(cmdNextBufferComplete{SoundID: soundID, Buf: buf, NewPos: newPos})
	})
}

func (c *Coordinator) handleNextBufferComplete(m cmdNextBufferComplete) {
	st, ok := c.sounds[m.SoundID]
	if !ok {
		return
	}
	st.busy = false
	st.posFrames = m.NewPos

	select {
	case st.stream.buffers <- m.Buf:
	default:
		// Stream mailbox is full; the renderer has fallen behind, drop
		// the refill and let the next recycle retry.
	}
	metrics.SetWAVBufferDepth(m.SoundID, len(st.stream.buffers))

	if len(st.pending) > 0 {
		next := st.pending[0]
		st.pending = st.pending[1:]
		c.handleNextBuffer(cmdNextBuffer{SoundID: m.SoundID, Recycled: next})
	}
}

func (c *Coordinator) handleEnd(m cmdEnd) {
	delete(c.sounds, m.SoundID)
	metrics.RemoveWAVBufferDepth(m.SoundID)
}

func (c *Coordinator) submit(fn func()) {
	select {
	case c.jobs <- fn:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) postResult(cmd any) {
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

// fillBuffer copies up to model.FramesPerBuffer frames starting at pos
// into buf, wrapping to 0 when looped, and returns the new position.
func fillBuffer(w *decodedWAV, pos int, looped bool, buf *Buffer) int {
	channels := w.channels
	want := model.FramesPerBuffer
	written := 0

	if w.durationFrames == 0 {
		buf.Frames = 0
		buf.Final = true
		return 0
	}

	for written < want {
		if pos >= w.durationFrames {
			if !looped {
				break
			}
			pos = 0
		}
		avail := w.durationFrames - pos
		n := want - written
		if n > avail {
			n = avail
		}
		srcStart := pos * channels
		dstStart := written * channels
		copy(buf.Samples[dstStart:dstStart+n*channels], w.samples[srcStart:srcStart+n*channels])
		written += n
		pos += n
	}

	buf.Frames = written
	buf.Final = !looped && pos >= w.durationFrames && written < want
	return pos
}
