//go:build !rp2040 && !rp2350

package platform

import (
	"errors"
	"testing"

	"rotary-go/services/hal/internal/core"
)

func TestSimPinFiresOnChangeOnly(t *testing.T) {
	b := NewSimBoard()
	p, ok := b.Pin(4)
	if !ok {
		t.Fatal("pin 4 missing")
	}
	fired := 0
	if err := p.SetIRQ(core.EdgeBoth, func() { fired++ }); err != nil {
		t.Fatalf("SetIRQ: %v", err)
	}
	p.SetLevel(true)
	p.SetLevel(true)
	p.SetLevel(false)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}

	_ = p.ClearIRQ()
	p.SetLevel(true)
	if fired != 2 || p.HasIRQ() {
		t.Fatal("handler ran after ClearIRQ")
	}
}

func TestSimPinRisingOnlyAndPull(t *testing.T) {
	b := NewSimBoard()
	p, _ := b.Pin(5)
	_ = p.ConfigureInput(core.PullUp)
	if !p.Get() || p.Pull() != core.PullUp {
		t.Fatal("pull-up input not high")
	}
	fired := 0
	_ = p.SetIRQ(core.EdgeRising, func() { fired++ })
	p.SetLevel(false)
	p.SetLevel(true)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestSimBoardRangeAndStablePins(t *testing.T) {
	b := NewSimBoard()
	if _, ok := b.ByNumber(29); ok {
		t.Fatal("pin 29 accepted")
	}
	h1, _ := b.ByNumber(3)
	h2, _ := b.ByNumber(3)
	if h1 != h2 {
		t.Fatal("ByNumber returned different handles for one pin")
	}
	b.DisableIRQ(3)
	p, _ := b.Pin(3)
	if err := p.SetIRQ(core.EdgeBoth, func() {}); err == nil {
		t.Fatal("SetIRQ succeeded on disabled pin")
	}
}

func TestSimExpander(t *testing.T) {
	b := NewSimBoard()
	bus, ok := b.Bus("i2c0")
	if !ok {
		t.Fatal("i2c0 missing")
	}
	e := NewSimExpander(0x20)
	bus.Attach(e)

	e.SetInput(1, false)
	var r [1]byte
	if err := bus.Tx(0x20, nil, r[:]); err != nil || r[0] != 0xFD {
		t.Fatalf("read = %#x, %v", r[0], err)
	}
	// A low latch bit pulls the port low.
	if err := bus.Tx(0x20, []byte{0x7F}, nil); err != nil || e.Latch() != 0x7F {
		t.Fatalf("write latch = %#x, %v", e.Latch(), err)
	}
	_ = bus.Tx(0x20, nil, r[:])
	if r[0] != 0x7D {
		t.Fatalf("read after latch = %#x", r[0])
	}

	if err := bus.Tx(0x21, nil, r[:]); err == nil {
		t.Fatal("absent address acknowledged")
	}
	boom := errors.New("bus stuck")
	e.Fail(boom)
	if err := bus.Tx(0x20, nil, r[:]); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
