package modbusmirror

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultMaxFailures uint32 = 5
	defaultOpenFor            = 5 * time.Second
)

type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed writes that opens the
	// circuit; default 5.
	MaxFailures uint32
	// OpenFor is how long the circuit stays open before one probe write is
	// let through; default 5s.
	OpenFor time.Duration
}

// BreakerWriter fails writes fast while the device keeps refusing them. The
// mirror keeps such values pending, so the latest one is written once the
// probe succeeds.
type BreakerWriter struct {
	inner RegisterWriter
	cb    *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerWriter(inner RegisterWriter, cfg BreakerConfig, log *slog.Logger) *BreakerWriter {
	if log == nil {
		log = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openFor := cfg.OpenFor
	if openFor == 0 {
		openFor = defaultOpenFor
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "modbus",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("modbus circuit", "from", from.String(), "to", to.String())
		},
	})
	return &BreakerWriter{inner: inner, cb: cb}
}

func (b *BreakerWriter) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.WriteRegisters(unitID, addr, regs)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("modbusmirror: circuit open: %w", err)
	}
	return err
}

func (b *BreakerWriter) State() gobreaker.State { return b.cb.State() }
