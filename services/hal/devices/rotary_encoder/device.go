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

// Device publishes one encoder capability. Values are retained
// {position, direction}; motion also raises event/cw or event/ccw.
type Device struct {
	id  string
	pub core.EventEmitter
	reg core.ResourceRegistry

	dom  string
	name string
	a    core.CapAddr

	spec     core.EncoderSpec
	info     types.EncoderInfo
	expander *pcf8574.Device // nil for GPIO encoders
	release  func()

	es   core.EncoderStream
	done chan struct{}
}

func newDevice(in core.BuilderInput, dom, name string) *Device {
	if dom == "" {
		dom = defaultDomain
	}
	if name == "" {
		name = in.ID
	}
	return &Device{id: in.ID, pub: in.Res.Pub, reg: in.Res.Reg, dom: dom, name: name}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	driver := "gpio_encoder"
	if d.expander != nil {
		driver = "pcf8574_encoder"
	}
	return []core.CapabilitySpec{{
		Domain: d.dom,
		Kind:   types.KindEncoder,
		Name:   d.name,
		Info:   types.Info{SchemaVersion: 1, Driver: driver, Detail: d.info},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	d.a = core.CapAddr{Domain: d.dom, Kind: types.KindEncoder, Name: d.name}

	es, err := d.reg.OpenEncoder(d.id, d.spec)
	if err != nil {
		return err
	}
	d.es = es
	d.info.Polled = es.Polled()

	// Publish initial value.
	d.pub.Emit(core.Event{Addr: d.a, Payload: types.EncoderValue{Position: es.Position()}, TSms: timex.NowMs()})

	d.done = make(chan struct{})
	go d.eventLoop()
	return nil
}

func (d *Device) Close() error {
	if d.es != nil {
		d.es.Close()
		<-d.done
		d.es = nil
	}
	if d.release != nil {
		d.release()
		d.release = nil
	}
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		v := types.EncoderValue{Position: d.es.Position()}
		if !d.pub.Emit(core.Event{Addr: d.a, Payload: v, TSms: timex.NowMs()}) {
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
		return core.EnqueueResult{OK: true}, nil
	case "set_position":
		p, code := core.As[types.EncoderSetPosition](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		// The stream reports the new position; eventLoop publishes it.
		d.es.SetPosition(p.Position)
		return core.EnqueueResult{OK: true}, nil
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) eventLoop() {
	defer close(d.done)
	for ev := range d.es.Events() {
		v := types.EncoderValue{Position: ev.Position, Direction: int8(ev.Direction)}
		if ev.Direction != rotary.NoRotation {
			_ = d.pub.Emit(core.Event{Addr: d.a, EventTag: ev.Direction.String(), Payload: v, TSms: ev.TSms})
		}
		_ = d.pub.Emit(core.Event{Addr: d.a, Payload: v, TSms: ev.TSms})
	}
}
