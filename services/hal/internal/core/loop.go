package core

import (
	"context"
	"sync/atomic"
	"time"

	"rotary-go/bus"
	"rotary-go/errcode"
	"rotary-go/types"
	"rotary-go/x/timex"
)

const eventQueueLen = 16

// dropReport is how often Run checks the drop counter.
var dropReport = time.Second

// capKey is the (domain, kind, name) triple of a capability address.
type capKey struct{ domain, kind, name string }

func (k capKey) addr() CapAddr { return CapAddr{Domain: k.domain, Kind: types.Kind(k.kind), Name: k.name} }

// HAL owns the devices and is the only publisher of capability topics.
// Devices hand events to Emit; Run publishes them in order.
type HAL struct {
	conn *bus.Connection
	res  Resources

	devs []Device          // in build order
	ids  map[string]bool   // configured device IDs
	caps map[capKey]Device // capability -> owning device

	level    string
	status   string
	events   chan Event
	drops    uint32
	reported uint32
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:   conn,
		res:    res,
		ids:    map[string]bool{},
		caps:   map[capKey]Device{},
		events: make(chan Event, eventQueueLen),
	}
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	cfg := h.conn.Subscribe(TopicConfigHAL())
	ctrl := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfg)
	defer h.conn.Unsubscribe(ctrl)
	defer h.closeAll()

	tick := time.NewTicker(dropReport)
	defer tick.Stop()

	h.setState("idle", "awaiting_config")
	for {
		select {
		case <-ctx.Done():
			h.setState("stopped", "context_cancelled")
			return

		case m := <-cfg.Channel():
			c, code := As[types.HALConfig](m.Payload)
			if code != "" {
				println("[hal] ignoring config/hal payload:", string(code))
				continue
			}
			for _, dc := range c.Devices {
				if h.ids[dc.ID] {
					continue
				}
				if err := h.add(ctx, dc); err != nil {
					println("[hal] device", dc.ID, "skipped:", err.Error())
				}
			}
			if h.level != "ready" {
				h.setState("ready", "")
			}

		case m := <-ctrl.Channel():
			if h.level != "ready" {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.control(m)

		case ev := <-h.events:
			h.publish(ev)

		case <-tick.C:
			n := atomic.LoadUint32(&h.drops)
			switch {
			case n != h.reported:
				h.reported = n
				h.setState(h.level, "events_dropped")
			case h.status == "events_dropped":
				h.setState(h.level, "")
			}
		}
	}
}

// add builds and initialises one device, then announces its capabilities
// with retained info and status down.
func (h *HAL) add(ctx context.Context, dc types.HALDevice) error {
	b, ok := LookupBuilder(dc.Type)
	if !ok {
		return errcode.UnknownType
	}
	dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
	if err != nil {
		return err
	}
	if err := dev.Init(ctx); err != nil {
		_ = dev.Close()
		return err
	}
	h.ids[dev.ID()] = true
	h.devs = append(h.devs, dev)

	now := timex.NowMs()
	for _, cs := range dev.Capabilities() {
		k := capKey{domain: cs.Domain, kind: string(cs.Kind), name: cs.Name}
		if k.domain == "" {
			k.domain = defaultDomainFor(cs.Kind)
		}
		if k.name == "" {
			k.name = dev.ID()
		}
		h.caps[k] = dev
		h.retain(CapInfo(k.domain, k.kind, k.name), cs.Info)
		h.retain(CapStatus(k.domain, k.kind, k.name), types.CapabilityStatus{Link: types.LinkDown, TSms: now})
	}
	return nil
}

func (h *HAL) closeAll() {
	for i := len(h.devs) - 1; i >= 0; i-- {
		_ = h.devs[i].Close()
	}
	h.devs = nil
}

// control routes hal/cap/<domain>/<kind>/<name>/control/<verb> to the
// owning device.
func (h *HAL) control(m *bus.Message) {
	if m.Topic.Len() < 7 {
		h.replyErr(m, errcode.InvalidTopic)
		return
	}
	var k capKey
	k.domain, _ = m.Topic.At(2).(string)
	k.kind, _ = m.Topic.At(3).(string)
	k.name, _ = m.Topic.At(4).(string)
	verb, _ := m.Topic.At(6).(string)

	dev := h.caps[k]
	if dev == nil {
		h.replyErr(m, errcode.UnknownCapability)
		return
	}
	res, err := dev.Control(k.addr(), verb, m.Payload)
	switch {
	case err != nil:
		h.replyFromError(m, err)
	case !m.CanReply():
	case res.OK:
		h.replyOK(m)
	case res.Error != "":
		h.replyErr(m, res.Error)
	default:
		h.replyErr(m, errcode.Busy)
	}
}

// publish turns a device event into bus traffic. Errors mark the capability
// degraded. Tagged events are transient. Values are retained and mark the
// capability up.
func (h *HAL) publish(ev Event) {
	d, k, n := ev.Addr.Domain, string(ev.Addr.Kind), ev.Addr.Name
	ts := ev.TSms
	if ts == 0 {
		ts = timex.NowMs()
	}
	switch {
	case ev.Err != "":
		h.retain(CapStatus(d, k, n), types.CapabilityStatus{Link: types.LinkDegraded, TSms: ts, Error: ev.Err})
	case ev.EventTag != "":
		h.conn.Publish(h.conn.NewMessage(CapEvent(d, k, n, ev.EventTag), ev.Payload, false))
	default:
		h.retain(CapValue(d, k, n), ev.Payload)
		h.retain(CapStatus(d, k, n), types.CapabilityStatus{Link: types.LinkUp, TSms: ts})
	}
}

func (h *HAL) retain(t bus.Topic, payload any) {
	h.conn.Publish(h.conn.NewMessage(t, payload, true))
}

func (h *HAL) setState(level, status string) {
	h.level, h.status = level, status
	h.retain(TopicHALState(), types.HALState{
		Level:  level,
		Status: status,
		Drops:  atomic.LoadUint32(&h.drops),
		TSms:   timex.NowMs(),
	})
}

func defaultDomainFor(kind types.Kind) string {
	if kind == types.KindEncoder {
		return "input"
	}
	return "io"
}

// Emit queues ev for publication. It never blocks; a full queue drops ev
// and counts it.
func (h *HAL) Emit(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		atomic.AddUint32(&h.drops, 1)
		return false
	}
}

// Drops reports events refused by Emit.
func (h *HAL) Drops() uint32 { return atomic.LoadUint32(&h.drops) }
