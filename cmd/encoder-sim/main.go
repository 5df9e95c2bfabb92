//go:build !rp2040 && !rp2350

// encoder-sim runs the HAL against simulated hardware on the host and
// replays a script of knob turns, logging every value the HAL publishes.
// Positions can be mirrored to a Modbus TCP device with -modbus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"rotary-go/bus"
	"rotary-go/services/config"
	"rotary-go/services/hal"
	"rotary-go/services/modbusmirror"
	"rotary-go/types"
)

var (
	configPath = flag.String("config", "", "YAML configuration file (default: the embedded -device config)")
	device     = flag.String("device", "pico-panel", "embedded configuration used without -config")
	scriptPath = flag.String("script", "", "script to replay (default: turn every device)")
	modbusAddr = flag.String("modbus", "", "mirror positions to this Modbus TCP endpoint (host:port)")
	modbusUnit = flag.Uint("modbus-unit", 1, "Modbus unit ID")
	modbusBase = flag.Uint("modbus-base", 0, "first holding register; each encoder takes three")
	modbusRate = flag.Float64("modbus-rate", 20, "max register writes per second per encoder")
	verbose    = flag.Bool("v", false, "debug logging")
)

const (
	readyTimeout   = 2 * time.Second
	requestTimeout = 500 * time.Millisecond
)

func main() {
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("encoder-sim failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	raw, ok := config.EmbeddedConfigLookup(*device)
	if !ok {
		return nil, fmt.Errorf("no embedded config for %q", *device)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadScript(knobs []*knob) ([]step, error) {
	if *scriptPath == "" {
		ids := make([]string, len(knobs))
		for i, k := range knobs {
			ids[i] = k.id
		}
		return defaultScript(ids), nil
	}
	f, err := os.Open(*scriptPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseScript(f)
}

func run(ctx context.Context, log *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	board := hal.NewSimBoard()
	knobs, err := buildKnobs(cfg, board)
	if err != nil {
		return err
	}
	steps, err := loadScript(knobs)
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bus.NewBus(32)
	go hal.RunWith(ctx, b.NewConnection("hal"), hal.Options{Pins: board, I2C: board})
	ui := b.NewConnection("sim")
	go monitor(ctx, b.NewConnection("monitor"), log)

	if *modbusAddr != "" {
		closeMirror, err := startMirror(ctx, b.NewConnection("modbus"), knobs, log)
		if err != nil {
			return fmt.Errorf("modbus: %w", err)
		}
		defer closeMirror()
	}

	if err := configure(ctx, ui, cfg); err != nil {
		return err
	}
	byID := make(map[string]*knob, len(knobs))
	for _, k := range knobs {
		k.state = k.l.rest()
		byID[k.id] = k
	}

	for _, s := range steps {
		if err := exec(ctx, ui, byID, s, log); err != nil {
			return err
		}
	}
	// Let the monitor drain the last values.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// configure publishes the HAL configuration and waits for the HAL to apply it.
func configure(ctx context.Context, c *bus.Connection, cfg *config.Config) error {
	st := c.Subscribe(hal.TopicHALState())
	defer c.Unsubscribe(st)
	config.Publish(c, cfg)

	timeout := time.After(readyTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.New("hal did not become ready")
		case m := <-st.Channel():
			if s, ok := m.Payload.(types.HALState); ok && s.Level == "ready" {
				return nil
			}
		}
	}
}

func exec(ctx context.Context, c *bus.Connection, knobs map[string]*knob, s step, log *slog.Logger) error {
	if s.op == opSleep {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.d):
			return nil
		}
	}
	k := knobs[s.device]
	if k == nil {
		return fmt.Errorf("script line %d: unknown device %q", s.line, s.device)
	}
	switch s.op {
	case opTurn:
		for i := 0; i < s.count; i++ {
			k.turn(s.cw)
		}
	case opSet:
		request(ctx, c, hal.EncoderControl(k.domain, k.name, "set_position"), types.EncoderSetPosition{Position: s.pos}, log)
	case opRead:
		request(ctx, c, hal.EncoderControl(k.domain, k.name, "read"), nil, log)
	}
	return nil
}

func request(ctx context.Context, c *bus.Connection, topic bus.Topic, payload any, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reply, err := c.RequestWait(ctx, c.NewMessage(topic, payload, false))
	if err != nil {
		log.Warn("request failed", "topic", topicString(topic), "err", err)
		return
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		log.Warn("request rejected", "topic", topicString(topic), "code", e.Error)
	}
}

func monitor(ctx context.Context, c *bus.Connection, log *slog.Logger) {
	values := c.Subscribe(hal.EncoderValue("+", "+"))
	status := c.Subscribe(hal.EncoderStatus("+", "+"))
	defer c.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-values.Channel():
			if v, ok := m.Payload.(types.EncoderValue); ok {
				log.Info("value", "encoder", m.Topic.At(4), "pos", v.Position, "dir", v.Direction)
			}
		case m := <-status.Channel():
			if s, ok := m.Payload.(types.CapabilityStatus); ok {
				log.Debug("status", "encoder", m.Topic.At(4), "link", s.Link, "err", s.Error)
			}
		}
	}
}

func startMirror(ctx context.Context, c *bus.Connection, knobs []*knob, log *slog.Logger) (func(), error) {
	cli, err := modbusmirror.Dial(modbusmirror.ClientConfig{Endpoint: *modbusAddr, Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	cfg := modbusmirror.Config{UnitID: uint8(*modbusUnit), MaxRate: *modbusRate}
	for i, k := range knobs {
		addr := uint16(*modbusBase) + uint16(3*i)
		cfg.Targets = append(cfg.Targets, modbusmirror.Target{Domain: k.domain, Name: k.name, Addr: addr})
		log.Info("mirroring", "encoder", k.name, "addr", addr)
	}
	w := modbusmirror.NewBreakerWriter(cli, modbusmirror.BreakerConfig{}, log)
	m, err := modbusmirror.New(w, cfg, log)
	if err != nil {
		cli.Close()
		return nil, err
	}
	go m.Run(ctx, c)
	return func() { _ = cli.Close() }, nil
}

func topicString(t bus.Topic) string {
	var s []byte
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			s = append(s, '/')
		}
		s = fmt.Appendf(s, "%v", t.At(i))
	}
	return string(s)
}
