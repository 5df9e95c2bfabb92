package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"rotary-go/bus"
	"rotary-go/errcode"
	"rotary-go/types"
)

// fakeDevice emits through the HAL emitter and records controls.
type fakeDevice struct {
	id      string
	pub     EventEmitter
	initErr error
	closed  chan struct{}
}

func (d *fakeDevice) ID() string { return d.id }
func (d *fakeDevice) Capabilities() []CapabilitySpec {
	return []CapabilitySpec{{Kind: types.KindEncoder, Info: types.Info{SchemaVersion: 1, Driver: "fake"}}}
}
func (d *fakeDevice) Init(context.Context) error { return d.initErr }
func (d *fakeDevice) Close() error               { close(d.closed); return nil }
func (d *fakeDevice) Control(a CapAddr, verb string, _ any) (EnqueueResult, error) {
	switch verb {
	case "ok":
		d.pub.Emit(Event{Addr: a, Payload: types.EncoderValue{Position: 3}})
		return EnqueueResult{OK: true}, nil
	case "busy":
		return EnqueueResult{}, nil
	case "fail":
		d.pub.Emit(Event{Addr: a, Err: "io_error"})
		return EnqueueResult{}, errcode.Wrap(errcode.UnknownPin, "fake", errors.New("gone"))
	}
	return EnqueueResult{Error: errcode.Unsupported}, nil
}

type fakeBuilder struct{ made chan *fakeDevice }

func (b fakeBuilder) Build(_ context.Context, in BuilderInput) (Device, error) {
	if in.ID == "broken" {
		return nil, errcode.InvalidParams
	}
	d := &fakeDevice{id: in.ID, pub: in.Res.Pub, closed: make(chan struct{})}
	if in.ID == "noinit" {
		d.initErr = errors.New("no hardware")
	}
	b.made <- d
	return d, nil
}

var made = make(chan *fakeDevice, 8)

func init() { RegisterBuilder("fake", fakeBuilder{made: made}) }

func startLoop(t *testing.T) (*bus.Connection, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := bus.NewBus(16)
	h := NewHAL(b.NewConnection("hal"), Resources{})
	go h.Run(ctx)
	ui := b.NewConnection("ui")
	st := ui.Subscribe(TopicHALState())
	defer ui.Unsubscribe(st)
	expect(t, st, func(p any) bool { s, ok := p.(types.HALState); return ok && s.Level == "idle" })
	return ui, cancel
}

func expect(t *testing.T, sub *bus.Subscription, match func(any) bool) any {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if match(m.Payload) {
				return m.Payload
			}
		case <-deadline:
			t.Fatalf("timeout on %v", sub.Topic())
			return nil
		}
	}
}

func request(t *testing.T, c *bus.Connection, topic bus.Topic) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	m, err := c.RequestWait(ctx, c.NewMessage(topic, nil, false))
	if err != nil {
		t.Fatalf("request %v: %v", topic, err)
	}
	return m.Payload
}

func errorOf(p any) string {
	if e, ok := p.(types.ErrorReply); ok {
		return e.Error
	}
	return ""
}

func TestHALLoop(t *testing.T) {
	ui, cancel := startLoop(t)

	if got := errorOf(request(t, ui, CapCtrl("input", "encoder", "a", "ok"))); got != "hal_not_ready" {
		t.Fatalf("before config: %q", got)
	}

	st := ui.Subscribe(TopicHALState())
	ui.Publish(ui.NewMessage(TopicConfigHAL(), types.HALConfig{Devices: []types.HALDevice{
		{ID: "a", Type: "fake"},
		{ID: "broken", Type: "fake"},
		{ID: "noinit", Type: "fake"},
		{ID: "z", Type: "missing"},
	}}, true))
	expect(t, st, func(p any) bool { s, ok := p.(types.HALState); return ok && s.Level == "ready" })

	devA := <-made
	noinit := <-made
	select {
	case <-noinit.closed:
	case <-time.After(time.Second):
		t.Fatal("device failing Init was not closed")
	}

	// Default domain for encoders and default name from the device id.
	info := ui.Subscribe(CapInfo("input", "encoder", "a"))
	expect(t, info, func(p any) bool { i, ok := p.(types.Info); return ok && i.Driver == "fake" })

	val := ui.Subscribe(CapValue("input", "encoder", "a"))
	status := ui.Subscribe(CapStatus("input", "encoder", "a"))
	if p := request(t, ui, CapCtrl("input", "encoder", "a", "ok")); p != (types.OKReply{OK: true}) {
		t.Fatalf("ok reply = %#v", p)
	}
	expect(t, val, func(p any) bool { v, ok := p.(types.EncoderValue); return ok && v.Position == 3 })
	expect(t, status, func(p any) bool { s, ok := p.(types.CapabilityStatus); return ok && s.Link == types.LinkUp })

	if got := errorOf(request(t, ui, CapCtrl("input", "encoder", "a", "busy"))); got != "busy" {
		t.Fatalf("busy: %q", got)
	}
	if got := errorOf(request(t, ui, CapCtrl("input", "encoder", "a", "fail"))); got != "unknown_pin" {
		t.Fatalf("fail: %q", got)
	}
	expect(t, status, func(p any) bool {
		s, ok := p.(types.CapabilityStatus)
		return ok && s.Link == types.LinkDegraded && s.Error == "io_error"
	})
	if got := errorOf(request(t, ui, CapCtrl("input", "encoder", "noinit", "ok"))); got != "unknown_capability" {
		t.Fatalf("noinit: %q", got)
	}

	cancel()
	select {
	case <-devA.closed:
	case <-time.After(time.Second):
		t.Fatal("device not closed on stop")
	}
}

func TestAs(t *testing.T) {
	if v, code := As[types.EncoderSetPosition](types.EncoderSetPosition{Position: 4}); code != "" || v.Position != 4 {
		t.Fatalf("value: %v %q", v, code)
	}
	if v, code := As[types.EncoderSetPosition](&types.EncoderSetPosition{Position: 5}); code != "" || v.Position != 5 {
		t.Fatalf("pointer: %v %q", v, code)
	}
	if v, code := As[types.EncoderSetPosition](nil); code != "" || v.Position != 0 {
		t.Fatalf("nil: %v %q", v, code)
	}
	if _, code := As[types.EncoderSetPosition]("5"); code != errcode.InvalidPayload {
		t.Fatalf("wrong type: %q", code)
	}
}

func TestParsePull(t *testing.T) {
	for s, want := range map[string]Pull{"": PullNone, "none": PullNone, "up": PullUp, "down": PullDown} {
		if got, ok := ParsePull(s); !ok || got != want {
			t.Fatalf("ParsePull(%q) = %v, %v", s, got, ok)
		}
	}
	if _, ok := ParsePull("float"); ok {
		t.Fatal("ParsePull accepted float")
	}
}

func TestRegisterBuilderDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	RegisterBuilder("fake", fakeBuilder{})
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	h := NewHAL(bus.NewBus(4).NewConnection("hal"), Resources{})
	for i := 0; i < eventQueueLen; i++ {
		if !h.Emit(Event{}) {
			t.Fatalf("emit %d refused", i)
		}
	}
	if h.Emit(Event{}) || h.Emit(Event{}) {
		t.Fatal("emit on full queue accepted")
	}
	if got := h.Drops(); got != 2 {
		t.Fatalf("drops = %d, want 2", got)
	}
}

func TestDropStatusClearsWhenDropsStop(t *testing.T) {
	prev := dropReport
	dropReport = 10 * time.Millisecond
	t.Cleanup(func() { dropReport = prev })

	b := bus.NewBus(16)
	h := NewHAL(b.NewConnection("hal"), Resources{})
	for i := 0; i < eventQueueLen+2; i++ {
		h.Emit(Event{Addr: CapAddr{Domain: "input", Kind: types.KindEncoder, Name: "x"}})
	}

	ui := b.NewConnection("ui")
	st := ui.Subscribe(TopicHALState())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	expect(t, st, func(p any) bool {
		s, ok := p.(types.HALState)
		return ok && s.Status == "events_dropped" && s.Drops == 2
	})
	// The next quiet tick clears the status; the count stays.
	expect(t, st, func(p any) bool {
		s, ok := p.(types.HALState)
		return ok && s.Level == "idle" && s.Status == "" && s.Drops == 2
	})
}
