package rotary_encoder

import (
	"context"

	"rotary-go/drivers/pcf8574"
	"rotary-go/drivers/rotary"
	"rotary-go/errcode"
	"rotary-go/services/hal/internal/core"
	"rotary-go/types"
	"rotary-go/x/timex"
)

func init() {
	core.RegisterBuilder(types.DeviceRotaryEncoder, gpioBuilder{})
	core.RegisterBuilder(types.DevicePCF8574Encoder, expanderBuilder{})
}

const defaultDomain = "input"

type gpioBuilder struct{}

func (gpioBuilder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.RotaryEncoderParams](in.Params)
	if code != "" {
		return nil, code
	}
	if p.PinA < 0 || p.PinB < 0 || p.PinA == p.PinB {
		return nil, errcode.InvalidParams
	}
	mode, err := rotary.ParseLatchMode(p.Mode)
	if err != nil {
		return nil, errcode.InvalidMode
	}
	pull, ok := core.ParsePull(p.Pull)
	if !ok {
		return nil, errcode.InvalidParams
	}

	reg := in.Res.Reg
	clk, err := reg.ClaimGPIO(in.ID, p.PinA)
	if err != nil {
		return nil, err
	}
	dt, err := reg.ClaimGPIO(in.ID, p.PinB)
	if err != nil {
		reg.ReleaseGPIO(in.ID, p.PinA)
		return nil, err
	}
	_ = clk.ConfigureInput(pull)
	_ = dt.ConfigureInput(pull)

	d := newDevice(in, p.Domain, p.Name)
	d.spec = core.EncoderSpec{Clk: clk, Dt: dt, Mode: mode, Poll: timex.Millis(p.PollMs)}
	d.info = types.EncoderInfo{PinA: p.PinA, PinB: p.PinB, Mode: mode.String()}
	d.release = func() {
		reg.ReleaseGPIO(in.ID, p.PinA)
		reg.ReleaseGPIO(in.ID, p.PinB)
	}
	return d, nil
}

type expanderBuilder struct{}

func (expanderBuilder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.PCF8574EncoderParams](in.Params)
	if code != "" {
		return nil, code
	}
	if p.Bus == "" || p.PinA < 0 || p.PinA > 7 || p.PinB < 0 || p.PinB > 7 || p.PinA == p.PinB {
		return nil, errcode.InvalidParams
	}
	mode, err := rotary.ParseLatchMode(p.Mode)
	if err != nil {
		return nil, errcode.InvalidMode
	}

	reg := in.Res.Reg
	bus, err := reg.ClaimI2C(in.ID, p.Bus)
	if err != nil {
		return nil, err
	}
	dev := pcf8574.New(bus)
	a, b := uint8(p.PinA), uint8(p.PinB)
	if err := dev.Configure(pcf8574.Config{Address: p.Addr, Inputs: 1<<a | 1<<b}); err != nil {
		reg.ReleaseI2C(in.ID, p.Bus)
		return nil, errcode.Wrap(errcode.UnknownDevice, "pcf8574", err)
	}

	poll := timex.Millis(p.PollMs)
	if poll == 0 {
		poll = core.DefaultPoll
	}
	d := newDevice(in, p.Domain, p.Name)
	d.expander = &dev
	clk, dt := dev.PinPair(a, b)
	d.spec = core.EncoderSpec{Clk: clk, Dt: dt, Mode: mode, Poll: poll}
	d.info = types.EncoderInfo{PinA: p.PinA, PinB: p.PinB, Mode: mode.String(), Bus: p.Bus, Addr: dev.Address}
	d.release = func() { reg.ReleaseI2C(in.ID, p.Bus) }
	return d, nil
}
