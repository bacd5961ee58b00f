package wavstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWAV(channels, durationFrames int) *decodedWAV {
	samples := make([]float32, channels*durationFrames)
	for i := range samples {
		samples[i] = float32(i)
	}
	return &decodedWAV{samples: samples, channels: channels, sampleRate: 44100, durationFrames: durationFrames}
}

func TestFillBufferNonLoopedStopsAtEnd(t *testing.T) {
	t.Parallel()

	w := sampleWAV(2, 10)
	buf := NewBuffer(2)
	newPos := fillBuffer(w, 5, false, buf)

	assert.Equal(t, 5, buf.Frames)
	assert.True(t, buf.Final)
	assert.Equal(t, 10, newPos)
}

func TestFillBufferLoopedWraps(t *testing.T) {
	t.Parallel()

	w := sampleWAV(1, 10)
	buf := NewBuffer(1)
	newPos := fillBuffer(w, 8, true, buf)

	require.Equal(t, 64, len(buf.Samples))
	assert.False(t, buf.Final)
	assert.Equal(t, 64, buf.Frames) // FramesPerBuffer, since it wraps indefinitely
	assert.Less(t, newPos, 10)
}

func TestFillBufferEmptyFileMarksFinalImmediately(t *testing.T) {
	t.Parallel()

	w := sampleWAV(1, 0)
	buf := NewBuffer(1)
	fillBuffer(w, 0, false, buf)

	assert.Equal(t, 0, buf.Frames)
	assert.True(t, buf.Final)
}

func TestWAVCachePutGet(t *testing.T) {
	t.Parallel()

	c := newWAVCache()
	_, ok := c.get("missing.wav")
	assert.False(t, ok)

	w := sampleWAV(1, 4)
	c.put("a.wav", w)
	got, ok := c.get("a.wav")
	require.True(t, ok)
	assert.Same(t, w, got)
}

func TestCoordinatorPlayProducesSilenceUntilDecoded(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(ctx)
	defer c.Close()

	stream := c.Play("missing-sound", "/nonexistent/path/does-not-exist.wav", 0, false)
	out := make([]float32, 16)
	n, final := stream.Pull(out)

	assert.Equal(t, 0, n)
	assert.False(t, final)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestStreamPullZeroFillsOnUnderrun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(ctx)
	defer c.Close()

	s := newStream(c, "s1")
	s.setChannels(2)

	out := []float32{9, 9, 9, 9}
	n, final := s.Pull(out)
	assert.Equal(t, 0, n)
	assert.False(t, final)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestStreamPullDrainsQueuedBuffer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(ctx)
	defer c.Close()

	s := newStream(c, "s1")
	s.setChannels(1)

	buf := NewBuffer(1)
	buf.Samples[0], buf.Samples[1] = 1, 2
	buf.Frames = 2
	buf.Final = true
	s.buffers <- buf

	out := make([]float32, 4)
	n, final := s.Pull(out)
	assert.Equal(t, 2, n)
	assert.True(t, final)
	assert.Equal(t, float32(1), out[0])
	assert.Equal(t, float32(2), out[1])
}
