// Package bridge carries encoder values and position commands over a framed
// serial link, so a host on the other end of the UART can follow and steer
// the knobs without sharing the bus.
//
// Frames are a type byte, a big-endian uint16 length and a JSON payload:
//
//	0x01 ping / 0x02 pong        no payload
//	0x10 value   device -> host  {"dev":"input/knob","pos":3,"dir":1}
//	0x11 setpos  host -> device  {"dev":"input/knob","pos":10}
//	0x13 ack     device -> host  {"dev":"input/knob","ok":true}
//	0x7f close
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"rotary-go/bus"
	"rotary-go/services/hal"
	"rotary-go/types"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge until ctx is cancelled. It waits for JSON config on
// config/bridge and (re)opens the link on every new config.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on config/bridge.
type Config struct {
	Transport TransportConfig `json:"transport"`
	// PingS is the keepalive period in seconds; default 5.
	PingS int `json:"ping_s,omitempty"`
}

type TransportConfig struct {
	// "uart" or a name registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig carries what the platform dialler needs to open the UART.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	ping := 5 * time.Second
	if cfg.PingS > 0 {
		ping = time.Duration(cfg.PingS) * time.Second
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, rwc, ping)
		_ = rwc.Close()
		if err == nil {
			// Clean close: restart only on new config.
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink forwards encoder values out and position commands in until the
// link fails or ctx ends.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, ping time.Duration) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	values := s.conn.Subscribe(hal.EncoderValue("+", "+"))
	defer s.conn.Unsubscribe(values)

	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePing:
				if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
					errCh <- err
					return
				}
			case frameSetPos:
				// Served off the reader so a slow HAL reply cannot stall it.
				go s.setPosition(ctx, wr, f.Payload)
			case frameClose:
				errCh <- nil
				return
			}
		}
	}()

	tick := time.NewTicker(ping)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case m, ok := <-values.Channel():
			if !ok {
				return errors.New("value subscription closed")
			}
			if err := s.forward(wr, m); err != nil {
				return err
			}
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

type valueMsg struct {
	Dev string `json:"dev"`
	Pos int    `json:"pos"`
	Dir int8   `json:"dir"`
}

type setPosMsg struct {
	Dev string `json:"dev"`
	Pos int    `json:"pos"`
}

type ackMsg struct {
	Dev   string `json:"dev"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Service) forward(wr *framedWriter, m *bus.Message) error {
	v, ok := m.Payload.(types.EncoderValue)
	if !ok {
		return nil
	}
	domain, _ := m.Topic.At(2).(string)
	name, _ := m.Topic.At(4).(string)
	b, err := json.Marshal(valueMsg{Dev: domain + "/" + name, Pos: v.Position, Dir: v.Direction})
	if err != nil {
		return err
	}
	return wr.WriteFrame(Frame{Type: frameValue, Payload: b})
}

func (s *Service) setPosition(ctx context.Context, wr *framedWriter, payload []byte) {
	var req setPosMsg
	ack := ackMsg{}
	if err := json.Unmarshal(payload, &req); err != nil {
		ack.Error = "invalid_payload"
		s.ack(wr, ack)
		return
	}
	ack.Dev = req.Dev
	domain, name, ok := strings.Cut(req.Dev, "/")
	if !ok || domain == "" || name == "" {
		ack.Error = "invalid_topic"
		s.ack(wr, ack)
		return
	}

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	topic := hal.EncoderControl(domain, name, "set_position")
	reply, err := s.conn.RequestWait(rctx, s.conn.NewMessage(topic, types.EncoderSetPosition{Position: req.Pos}, false))
	switch {
	case err != nil:
		ack.Error = "timeout"
	default:
		switch r := reply.Payload.(type) {
		case types.OKReply:
			ack.OK = r.OK
		case types.ErrorReply:
			ack.Error = r.Error
		default:
			ack.Error = "error"
		}
	}
	s.ack(wr, ack)
}

func (s *Service) ack(wr *framedWriter, a ackMsg) {
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	// A write failure also breaks the reader, which reports it.
	_ = wr.WriteFrame(Frame{Type: frameAck, Payload: b})
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not set")
)

// RegisterTransport adds a transport by name (e.g. "tcp" on host builds).
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		if cfg.UART == nil {
			return nil, errors.New("uart transport requires uart config")
		}
		return &uartTransport{cfg: *cfg.UART}, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is set by platform code and opens the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct{ cfg UARTConfig }

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing   byte = 0x01
	framePong   byte = 0x02
	frameValue  byte = 0x10
	frameSetPos byte = 0x11
	frameAck    byte = 0x13
	frameClose  byte = 0x7f
)

// Frame is a length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }

// framedWriter serialises whole frames from several goroutines.
type framedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	out := make([]byte, 0, 3+len(f.Payload))
	out = append(out, f.Type, byte(len(f.Payload)>>8), byte(len(f.Payload)))
	out = append(out, f.Payload...)
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(out)
	return err
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
