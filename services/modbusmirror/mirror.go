// Package modbusmirror copies encoder values published by the HAL into
// holding registers of a Modbus device, so a PLC or panel can follow the
// knobs.
//
// Each target occupies three registers from its base address:
//
//	base+0  position, high word (two's complement int32)
//	base+1  position, low word
//	base+2  direction of the last change (-1, 0, 1 as int16)
//
// Writes are rate limited per target. A value that arrives while the limiter
// is closed is kept and written on the next flush; only the latest value of
// a burst reaches the device.
package modbusmirror

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"rotary-go/bus"
	"rotary-go/services/hal"
	"rotary-go/types"
)

// RegisterWriter is the part of a Modbus client the mirror needs.
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Target maps one encoder capability to a register block.
type Target struct {
	Domain string `yaml:"domain"` // default "input"
	Name   string `yaml:"name"`
	Addr   uint16 `yaml:"addr"`
}

type Config struct {
	UnitID  uint8
	Targets []Target
	// MaxRate is the write rate per target in writes/s. Zero means unlimited.
	MaxRate float64
	// Flush is how often held values are retried; default 50ms.
	Flush time.Duration
}

var ErrNoTargets = errors.New("modbusmirror: no targets")

type key struct{ domain, name string }

type slot struct {
	t       Target
	lim     *rate.Limiter
	pending bool
	v       types.EncoderValue
}

type Mirror struct {
	w     RegisterWriter
	unit  uint8
	flush time.Duration
	log   *slog.Logger
	slots map[key]*slot
}

func New(w RegisterWriter, cfg Config, log *slog.Logger) (*Mirror, error) {
	if len(cfg.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Mirror{w: w, unit: cfg.UnitID, flush: cfg.Flush, log: log, slots: make(map[key]*slot)}
	if m.flush <= 0 {
		m.flush = 50 * time.Millisecond
	}
	lim := rate.Inf
	if cfg.MaxRate > 0 {
		lim = rate.Limit(cfg.MaxRate)
	}
	for _, t := range cfg.Targets {
		if t.Domain == "" {
			t.Domain = "input"
		}
		m.slots[key{t.Domain, t.Name}] = &slot{t: t, lim: rate.NewLimiter(lim, 1)}
	}
	return m, nil
}

// Encode lays v out as the three target registers.
func Encode(v types.EncoderValue) [3]uint16 {
	p := uint32(int32(v.Position))
	return [3]uint16{uint16(p >> 16), uint16(p), uint16(int16(v.Direction))}
}

// Run mirrors values from conn until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(hal.EncoderValue("+", "+"))
	defer sub.Unsubscribe()
	tick := time.NewTicker(m.flush)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			m.handle(msg)
		case <-tick.C:
			for _, s := range m.slots {
				if s.pending {
					m.write(s)
				}
			}
		}
	}
}

func (m *Mirror) handle(msg *bus.Message) {
	v, ok := msg.Payload.(types.EncoderValue)
	if !ok {
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	name, _ := msg.Topic.At(4).(string)
	s := m.slots[key{domain, name}]
	if s == nil {
		return
	}
	s.v = v
	s.pending = true
	m.write(s)
}

func (m *Mirror) write(s *slot) {
	if !s.lim.Allow() {
		return
	}
	regs := Encode(s.v)
	if err := m.w.WriteRegisters(m.unit, s.t.Addr, regs[:]); err != nil {
		// Kept pending; the next flush retries.
		m.log.Warn("modbus write failed", "encoder", s.t.Name, "addr", s.t.Addr, "err", err)
		return
	}
	s.pending = false
	m.log.Debug("mirrored", "encoder", s.t.Name, "pos", s.v.Position, "dir", s.v.Direction)
}
