// Package telemetry sends the per-installation OSC datagrams described
// in spec §6: one UDP message per installation, per tick, carrying the
// renderer's aggregated level and spectral summary. Coalescing (the
// 16ms throttle and identical-payload suppression from spec §4.G) is
// the analysis dispatcher's responsibility; this package only builds
// and sends one datagram per call.
package telemetry

import (
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/errors"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/logging"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/metrics"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/model"
	"github.com/museumsvictoria/spatial-audio-server-sub000/internal/render"
)

// AddressPattern is the fixed OSC address pattern every datagram is
// sent under. spec §6 only specifies the argument list and that the
// destination socket is configurable per computer; the OSC path
// itself is an implementation choice, held constant here since no
// per-installation routing happens at the OSC-address level.
const AddressPattern = "/conductor/frame"

// BuildMessage assembles the OSC message for one AudioFrameData, in
// the exact argument order mandated by spec §6: avg_peak, avg_rms,
// low, mid, high, 8 x bin, then per speaker (channel_index, peak, rms).
func BuildMessage(frame render.AudioFrameData) *osc.Message {
	msg := osc.NewMessage(AddressPattern)
	msg.Append(float32(frame.AvgPeak))
	msg.Append(float32(frame.AvgRMS))
	msg.Append(float32(frame.LMH.Low))
	msg.Append(float32(frame.LMH.Mid))
	msg.Append(float32(frame.LMH.High))
	for _, bin := range frame.Mel {
		msg.Append(float32(bin))
	}
	for _, sp := range frame.PerSpeaker {
		msg.Append(int32(sp.ChannelIndex))
		msg.Append(float32(sp.Peak))
		msg.Append(float32(sp.RMS))
	}
	return msg
}

// Sender sends OSC datagrams to a installation's configured computers,
// caching one osc.Client per destination address (spec §6: "address
// string is configurable per computer").
type Sender struct {
	mu      sync.Mutex
	clients map[string]*osc.Client
	logger  *slog.Logger
}

// NewSender creates an empty Sender.
func NewSender() *Sender {
	return &Sender{
		clients: make(map[string]*osc.Client),
		logger:  logging.ForService("telemetry"),
	}
}

func (s *Sender) clientFor(addr string) (*osc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[addr]; ok {
		return c, nil
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryTelemetry).
			Context("addr", addr).
			Build()
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryTelemetry).
			Context("addr", addr).
			Build()
	}

	client := osc.NewClient(host, port)
	s.clients[addr] = client
	return client, nil
}

// Send transmits frame to every computer's telemetry address. A
// failure to reach one computer is logged and does not stop delivery
// to the others (spec §7 kind 4: "message is recorded in a bounded
// log; the installation continues to receive subsequent messages").
func (s *Sender) Send(computers []model.Computer, frame render.AudioFrameData) {
	msg := BuildMessage(frame)
	for _, comp := range computers {
		if comp.TelemetryAddr == "" {
			continue
		}
		client, err := s.clientFor(comp.TelemetryAddr)
		if err != nil {
			s.logger.Warn("telemetry client setup failed", "computer_id", comp.ID, "error", err)
			metrics.RecordTelemetrySend(false)
			continue
		}
		if err := client.Send(msg); err != nil {
			s.logger.Warn("telemetry send failed", "computer_id", comp.ID, "error", err)
			metrics.RecordTelemetrySend(false)
			continue
		}
		metrics.RecordTelemetrySend(true)
	}
}
