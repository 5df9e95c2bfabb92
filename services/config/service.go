package config

import (
	"context"
	"errors"

	"rotary-go/bus"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
)

type ctxKey string

// CtxDeviceKey is the context key carrying the device (board) name used to
// select the embedded config.
const CtxDeviceKey ctxKey = "device"

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// TopicHAL is where the HAL configuration is published (retained).
func TopicHAL() bus.Topic { return bus.T(configPrefix, "hal") }

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// Publish sends cfg's HAL section as a retained message.
func Publish(conn *bus.Connection, cfg *Config) {
	conn.Publish(conn.NewMessage(TopicHAL(), cfg.HAL, true))
}

// publishConfig resolves the device's embedded YAML, validates it and
// publishes it.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	Publish(conn, cfg)
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}
