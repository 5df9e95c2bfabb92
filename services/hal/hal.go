// services/hal/hal.go
package hal

import (
	"context"

	"rotary-go/bus"
	"rotary-go/services/hal/internal/core"
	"rotary-go/services/hal/internal/encirq"
	"rotary-go/services/hal/internal/platform"
	"rotary-go/services/hal/internal/provider"
	"rotary-go/types"

	// Device builders register themselves.
	_ "rotary-go/services/hal/devices/rotary_encoder"
)

type (
	PinFactory = core.PinFactory
	I2CFactory = core.I2CFactory
)

// Options overrides the platform defaults. Zero fields take defaults.
type Options struct {
	Pins     PinFactory
	I2C      I2CFactory
	ISRQueue int // encoder notification queue; default 32
}

// Run serves encoder capabilities on conn using the platform's pins and
// buses until ctx is cancelled. The configuration arrives on config/hal.
func Run(ctx context.Context, conn *bus.Connection) { RunWith(ctx, conn, Options{}) }

func RunWith(ctx context.Context, conn *bus.Connection, opt Options) {
	if opt.Pins == nil {
		opt.Pins = platform.DefaultPinFactory()
	}
	if opt.I2C == nil {
		opt.I2C = platform.DefaultI2CFactory()
	}
	w := encirq.New(opt.ISRQueue)
	w.Start(ctx)

	reg := provider.New(opt.Pins, opt.I2C, w)
	h := core.NewHAL(conn, core.Resources{Reg: reg})
	h.Run(ctx)
}

// ---- Topics for consumers ----

const kind = string(types.KindEncoder)

func TopicConfig() bus.Topic   { return core.TopicConfigHAL() }
func TopicHALState() bus.Topic { return core.TopicHALState() }

// EncoderValue is the retained hal/cap/<domain>/encoder/<name>/value topic.
func EncoderValue(domain, name string) bus.Topic {
	return core.CapValue(domain, kind, name)
}

// EncoderEvent is hal/cap/<domain>/encoder/<name>/event/<tag>, tag "cw" or
// "ccw" ("+" for both).
func EncoderEvent(domain, name, tag string) bus.Topic {
	return core.CapEvent(domain, kind, name, tag)
}

func EncoderStatus(domain, name string) bus.Topic {
	return core.CapStatus(domain, kind, name)
}

func EncoderInfo(domain, name string) bus.Topic {
	return core.CapInfo(domain, kind, name)
}

// EncoderControl is hal/cap/<domain>/encoder/<name>/control/<verb>, verb
// "read" or "set_position".
func EncoderControl(domain, name, verb string) bus.Topic {
	return core.CapCtrl(domain, kind, name, verb)
}
