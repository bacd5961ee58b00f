// Package device wires the PCM playback device and realtime capture
// inputs described in spec §6 using malgo (miniaudio's Go binding).
// A NullDevice substitutes for real hardware in tests and any
// environment without a sound card.
package device

import (
	"encoding/binary"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/errors"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/soundengine"
)

// RenderFunc produces one callback's worth of interleaved f32 samples,
// the shape of render.Renderer.Render.
type RenderFunc func(out []float32, channels, frames int)

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component("device").
			Category(errors.CategoryDevice).
			Context("os", runtime.GOOS).
			Context("error", "unsupported operating system").
			Build()
	}
}

// Info describes one enumerated PCM device.
type Info struct {
	Index int
	Name  string
}

func enumerate(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]Info, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	out := make([]Info, 0, len(infos))
	for i := range infos {
		out = append(out, Info{Index: i, Name: infos[i].Name()})
	}
	return out, nil
}

// EnumeratePlaybackDevices lists the system's PCM output devices.
func EnumeratePlaybackDevices() ([]Info, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).Component("device").Category(errors.CategoryDevice).Build()
	}
	defer func() { _ = ctx.Uninit() }()
	return enumerate(ctx, malgo.Playback)
}

func selectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}
	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	return nil, errors.New(nil).
		Component("device").
		Category(errors.CategoryValidation).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

func float32ToBytes(samples []float32, out []byte) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(s))
	}
}

func bytesToFloat32(b []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
}

// PlaybackConfig configures the output PCM device (spec §6).
type PlaybackConfig struct {
	DeviceID        string
	SampleRate      uint32
	Channels        int
	FramesPerBuffer uint32
}

// PlaybackDevice drives RenderFunc on every hardware callback.
type PlaybackDevice struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	render   RenderFunc
	scratch  []float32
	bytes    []byte
	logger   *slog.Logger
}

// NewPlaybackDevice opens (but does not start) an output device.
func NewPlaybackDevice(cfg PlaybackConfig, render RenderFunc) (*PlaybackDevice, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "init_context").
			Build()
	}

	devices, err := ctx.Devices(malgo.Playback)
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	deviceInfo, err := selectDevice(devices, cfg.DeviceID)
	if err != nil {
		_ = ctx.Uninit()
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = cfg.FramesPerBuffer
	deviceConfig.Alsa.NoMMap = 1

	pd := &PlaybackDevice{
		ctx:      ctx,
		channels: cfg.Channels,
		render:   render,
		scratch:  make([]float32, int(cfg.FramesPerBuffer)*cfg.Channels),
		bytes:    make([]byte, int(cfg.FramesPerBuffer)*cfg.Channels*4),
		logger:   logging.ForService("device"),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: pd.onData,
		Stop: pd.onStop,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "init_device").
			Build()
	}
	pd.device = device

	return pd, nil
}

func (p *PlaybackDevice) onData(pOutput, _ []byte, framecount uint32) {
	n := int(framecount) * p.channels
	if n > len(p.scratch) {
		n = len(p.scratch)
	}
	out := p.scratch[:n]
	p.render(out, p.channels, int(framecount))
	float32ToBytes(out, pOutput)
}

func (p *PlaybackDevice) onStop() {
	p.logger.Warn("playback device stopped unexpectedly")
}

// Start begins playback.
func (p *PlaybackDevice) Start() error {
	if err := p.device.Start(); err != nil {
		return errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "start_playback").
			Build()
	}
	return nil
}

// Stop halts playback and releases the underlying device and context.
func (p *PlaybackDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx = nil
	}
	return nil
}

// CaptureConfig configures a realtime input capture device feeding a
// soundengine.RealtimeSignal (spec §4.C realtime sources).
type CaptureConfig struct {
	DeviceID       string
	SampleRate     uint32
	DeviceChannels int // total channels the capture device opens with
	ChannelStart   int // first channel (inclusive) forwarded to sink
	ChannelEnd     int // last channel (exclusive) forwarded to sink
}

// CaptureDevice reads hardware input and forwards a channel sub-range
// of each frame into sink.
type CaptureDevice struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	cfg    CaptureConfig
	sink   *soundengine.RealtimeSignal
	logger *slog.Logger
}

// NewCaptureDevice opens (but does not start) an input capture device.
func NewCaptureDevice(cfg CaptureConfig, sink *soundengine.RealtimeSignal) (*CaptureDevice, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "init_context").
			Build()
	}

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	deviceInfo, err := selectDevice(devices, cfg.DeviceID)
	if err != nil {
		_ = ctx.Uninit()
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.DeviceChannels)
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	cd := &CaptureDevice{
		ctx:    ctx,
		cfg:    cfg,
		sink:   sink,
		logger: logging.ForService("device"),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: cd.onData,
		Stop: cd.onStop,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "init_device").
			Build()
	}
	cd.device = device

	return cd, nil
}

func (c *CaptureDevice) onData(_, pInput []byte, framecount uint32) {
	total := int(framecount) * c.cfg.DeviceChannels
	full := make([]float32, total)
	bytesToFloat32(pInput, full)

	selected := c.cfg.ChannelEnd - c.cfg.ChannelStart
	if selected <= 0 {
		return
	}
	chunk := make([]float32, int(framecount)*selected)
	for frame := 0; frame < int(framecount); frame++ {
		src := full[frame*c.cfg.DeviceChannels+c.cfg.ChannelStart : frame*c.cfg.DeviceChannels+c.cfg.ChannelEnd]
		copy(chunk[frame*selected:(frame+1)*selected], src)
	}
	c.sink.Push(chunk)
}

func (c *CaptureDevice) onStop() {
	c.logger.Warn("capture device stopped unexpectedly")
}

// Start begins capture.
func (c *CaptureDevice) Start() error {
	if err := c.device.Start(); err != nil {
		return errors.New(err).
			Component("device").
			Category(errors.CategoryDevice).
			Context("operation", "start_capture").
			Build()
	}
	return nil
}

// Stop halts capture and releases the underlying device and context.
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx = nil
	}
	return nil
}

// NullDevice substitutes for hardware in tests and headless runs: it
// never touches a sound card, but exposes the same pull-driven shape
// so callers can exercise a full render cycle deterministically.
type NullDevice struct {
	channels int
	render   RenderFunc
}

// NewNullDevice builds a NullDevice driving render on demand via Pump.
func NewNullDevice(channels int, render RenderFunc) *NullDevice {
	return &NullDevice{channels: channels, render: render}
}

// Pump renders one callback's worth of frames and returns the buffer.
func (n *NullDevice) Pump(frames int) []float32 {
	out := make([]float32, frames*n.channels)
	n.render(out, n.channels, frames)
	return out
}
