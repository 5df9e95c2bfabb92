package rotary

import (
	"errors"
	"testing"
)

// ---- Test doubles ----

type fakePin struct {
	high bool
	err  error
}

func (p *fakePin) IsHigh() (bool, error) { return p.high, p.err }

type rig struct {
	a, b *fakePin
	d    Decoder
}

func newRig(initial uint8, mode LatchMode) *rig {
	r := &rig{a: &fakePin{}, b: &fakePin{}}
	r.set(initial)
	r.d = New(r.a, r.b, mode)
	return r
}

func (r *rig) set(s uint8) {
	r.a.high = s&1 != 0
	r.b.high = s&2 != 0
}

// step drives the pins to raw state s and samples once.
func (r *rig) step(s uint8) {
	r.set(s)
	r.d.CheckState()
}

var (
	cwFrom0  = []uint8{2, 3, 1, 0}
	ccwFrom0 = []uint8{1, 3, 2, 0}
	cwFrom3  = []uint8{1, 0, 2, 3}
	ccwFrom3 = []uint8{2, 0, 1, 3}
)

// ---- Tests ----

func TestTransitionTable(t *testing.T) {
	want := [16]int8{0, -1, 1, 0, 1, 0, 0, -1, -1, 0, 0, 1, 0, 1, -1, 0}
	if transitions != want {
		t.Fatalf("table = %v, want %v", transitions, want)
	}
	// Opposite corners are invalid double flips.
	for _, c := range [][2]uint8{{0, 3}, {3, 0}, {1, 2}, {2, 1}} {
		if d := transitions[c[1]|c[0]<<2]; d != 0 {
			t.Fatalf("transition %d->%d delta = %d, want 0", c[0], c[1], d)
		}
	}
}

func TestEveryTransitionAppliesTableDelta(t *testing.T) {
	for old := uint8(0); old < 4; old++ {
		for next := uint8(0); next < 4; next++ {
			r := newRig(old, Two03)
			r.step(next)
			want := int(transitions[next|old<<2])
			if r.d.fine != want {
				t.Fatalf("%d->%d: fine = %d, want %d", old, next, r.d.fine, want)
			}
			if r.d.State() != next {
				t.Fatalf("%d->%d: state = %d", old, next, r.d.State())
			}
		}
	}
}

func TestUnchangedStateIsNoop(t *testing.T) {
	for s := uint8(0); s < 4; s++ {
		for _, m := range []LatchMode{Four3, Four0, Two03} {
			r := newRig(s, m)
			r.d.SetPosition(2)
			before := r.d
			for i := 0; i < 3; i++ {
				r.step(s)
			}
			if r.d != before {
				t.Fatalf("state %d mode %v: decoder changed on repeated sample", s, m)
			}
		}
	}
}

func TestInitialRawStateBitPacking(t *testing.T) {
	cases := []struct {
		a, b bool
		want uint8
	}{
		{false, false, 0},
		{true, false, 1},
		{false, true, 2},
		{true, true, 3},
	}
	for _, c := range cases {
		d := New(&fakePin{high: c.a}, &fakePin{high: c.b}, Four3)
		if d.State() != c.want {
			t.Fatalf("A=%v B=%v: state = %d, want %d", c.a, c.b, d.State(), c.want)
		}
		if d.Position() != 0 || d.fine != 0 || d.prev != 0 {
			t.Fatalf("counters not zeroed: %+v", d)
		}
	}
}

func TestReadFailureIsLow(t *testing.T) {
	boom := errors.New("boom")
	a := &fakePin{high: true, err: boom}
	b := &fakePin{high: true}
	d := New(a, b, Four3)
	if d.State() != 2 {
		t.Fatalf("state = %d, want 2 (failed A read as low)", d.State())
	}

	// Recovering the read is a normal 2->3 transition.
	a.err = nil
	d.CheckState()
	if d.State() != 3 || d.fine != 1 {
		t.Fatalf("after recovery: state=%d fine=%d", d.State(), d.fine)
	}

	// A nil pin also reads low.
	d = New(nil, b, Four0)
	if d.State() != 2 {
		t.Fatalf("nil pin: state = %d, want 2", d.State())
	}
}

func TestFour3FullCycles(t *testing.T) {
	r := newRig(3, Four3)
	for i, s := range cwFrom3 {
		r.step(s)
		want := 0
		if i == len(cwFrom3)-1 {
			want = 1
		}
		if got := r.d.Position(); got != want {
			t.Fatalf("cw step %d (state %d): pos = %d, want %d", i, s, got, want)
		}
	}
	if r.d.fine != 4 {
		t.Fatalf("fine after cw cycle = %d, want 4", r.d.fine)
	}

	for i, s := range ccwFrom3 {
		r.step(s)
		want := 1
		if i == len(ccwFrom3)-1 {
			want = 0
		}
		if got := r.d.Position(); got != want {
			t.Fatalf("ccw step %d (state %d): pos = %d, want %d", i, s, got, want)
		}
	}
	if r.d.fine != 0 {
		t.Fatalf("fine after ccw cycle = %d, want 0", r.d.fine)
	}

	for _, s := range ccwFrom3 {
		r.step(s)
	}
	if r.d.fine != -4 || r.d.Position() != -1 {
		t.Fatalf("below zero: fine=%d pos=%d, want -4/-1", r.d.fine, r.d.Position())
	}
}

// From rest at 0, a Four3 decoder reaches its latch point half way through the
// cycle with only two fine steps, so state 3 latches position 0, not 1.
func TestFour3CycleFromZeroCountsFineSteps(t *testing.T) {
	r := newRig(0, Four3)
	r.step(2)
	r.step(3)
	if r.d.fine != 2 || r.d.Position() != 0 {
		t.Fatalf("at first 3: fine=%d pos=%d, want 2/0", r.d.fine, r.d.Position())
	}
	r.step(1)
	r.step(0)
	if r.d.fine != 4 || r.d.Position() != 0 {
		t.Fatalf("cw cycle: fine=%d pos=%d, want 4/0", r.d.fine, r.d.Position())
	}
	if d := r.d.Direction(); d != NoRotation {
		t.Fatalf("direction = %v, want NoRotation", d)
	}

	for _, s := range ccwFrom0 {
		r.step(s)
	}
	for _, s := range ccwFrom0 {
		r.step(s)
	}
	// The second ccw cycle latches at 3 with fine -2: -2>>2 is -1.
	if r.d.fine != -4 || r.d.Position() != -1 {
		t.Fatalf("ccw cycles: fine=%d pos=%d, want -4/-1", r.d.fine, r.d.Position())
	}
}

func TestFour0LatchesAtZero(t *testing.T) {
	r := newRig(0, Four0)
	for i, s := range cwFrom0 {
		r.step(s)
		want := 0
		if i == len(cwFrom0)-1 {
			want = 1
		}
		if got := r.d.Position(); got != want {
			t.Fatalf("step %d (state %d): pos = %d, want %d", i, s, got, want)
		}
	}
	for _, s := range ccwFrom0 {
		r.step(s)
	}
	for _, s := range ccwFrom0 {
		r.step(s)
	}
	if r.d.Position() != -1 || r.d.fine != -4 {
		t.Fatalf("pos=%d fine=%d, want -1/-4", r.d.Position(), r.d.fine)
	}
}

func TestTwo03LatchesEveryHalfCycle(t *testing.T) {
	r := newRig(0, Two03)
	want := []int{0, 1, 1, 2}
	for i, s := range cwFrom0 {
		r.step(s)
		if got := r.d.Position(); got != want[i] {
			t.Fatalf("cw step %d (state %d): pos = %d, want %d", i, s, got, want[i])
		}
	}
	for _, s := range ccwFrom0 {
		r.step(s)
	}
	if r.d.Position() != 0 {
		t.Fatalf("after ccw cycle pos = %d, want 0", r.d.Position())
	}

	// Same rotation under Four0 moves half as far.
	f := newRig(0, Four0)
	for i := 0; i < 2; i++ {
		for _, s := range cwFrom0 {
			f.step(s)
			r.step(s)
		}
	}
	if r.d.Position() != 2*f.d.Position() {
		t.Fatalf("two03 pos %d, four0 pos %d", r.d.Position(), f.d.Position())
	}
}

func TestDoubleFlipIsIgnored(t *testing.T) {
	r := newRig(0, Four3)
	r.step(3) // 0 -> 3 skips a state
	if r.d.fine != 0 || r.d.Position() != 0 {
		t.Fatalf("fine=%d pos=%d after glitch", r.d.fine, r.d.Position())
	}
	if r.d.State() != 3 {
		t.Fatalf("state = %d, want 3", r.d.State())
	}
}

func TestSetPosition(t *testing.T) {
	for _, m := range []LatchMode{Four3, Four0, Two03} {
		r := newRig(0, m)
		r.step(2) // leave a sub-latch phase behind
		r.d.SetPosition(5)
		if got := r.d.Position(); got != 5 {
			t.Fatalf("%v: pos = %d, want 5", m, got)
		}
		if got := r.d.Direction(); got != NoRotation {
			t.Fatalf("%v: direction after override = %v", m, got)
		}
		shift := m.shift()
		if r.d.fine>>shift != 5 || r.d.fine&(1<<shift-1) != 1 {
			t.Fatalf("%v: fine = %d, phase lost", m, r.d.fine)
		}
		// Continue the rotation in progress. Only Two03 has a latch point at
		// state 3 ahead of the detent it left.
		r.step(3)
		want := 5
		if m == Two03 {
			want = 6
		}
		if got := r.d.Position(); got != want {
			t.Fatalf("%v: pos after continuing = %d, want %d", m, got, want)
		}
	}
}

func TestSetPositionNegative(t *testing.T) {
	r := newRig(3, Four3)
	r.d.SetPosition(-3)
	for _, s := range cwFrom3 {
		r.step(s)
	}
	if got := r.d.Position(); got != -2 {
		t.Fatalf("pos = %d, want -2", got)
	}
}

func TestDirectionConsumed(t *testing.T) {
	r := newRig(3, Four3)
	if d := r.d.Direction(); d != NoRotation {
		t.Fatalf("initial direction = %v", d)
	}
	for _, s := range cwFrom3 {
		r.step(s)
	}
	if d := r.d.Direction(); d != Clockwise {
		t.Fatalf("direction = %v, want cw", d)
	}
	if d := r.d.Direction(); d != NoRotation {
		t.Fatalf("second query = %v, want none", d)
	}
	for _, s := range ccwFrom3 {
		r.step(s)
	}
	if d := r.d.Direction(); d != CounterClockwise {
		t.Fatalf("direction = %v, want ccw", d)
	}
	if d := r.d.Direction(); d != NoRotation {
		t.Fatalf("second query = %v, want none", d)
	}
}

func TestEndToEndDetentRotation(t *testing.T) {
	// Both pins low at rest; the detent is raw state 0.
	r := newRig(0, Four0)
	want := []int{0, 0, 0, 1}
	for i, s := range cwFrom0 {
		r.step(s)
		if got := r.d.Position(); got != want[i] {
			t.Fatalf("call %d: pos = %d, want %d", i+1, got, want[i])
		}
	}
	if d := r.d.Direction(); d != Clockwise {
		t.Fatalf("direction = %v, want cw", d)
	}
	if int(Clockwise) != 1 || int(CounterClockwise) != -1 || int(NoRotation) != 0 {
		t.Fatal("direction values changed")
	}
}

func TestPinsAndMode(t *testing.T) {
	a, b := &fakePin{}, &fakePin{}
	d := New(a, b, Two03)
	clk, dt := d.Pins()
	if clk != a || dt != b {
		t.Fatal("Pins returned wrong handles")
	}
	if d.Mode() != Two03 {
		t.Fatalf("mode = %v", d.Mode())
	}
}

func TestParseLatchMode(t *testing.T) {
	cases := []struct {
		in   string
		want LatchMode
		err  bool
	}{
		{"", Four3, false},
		{"four3", Four3, false},
		{"FOUR0", Four0, false},
		{"two03", Two03, false},
		{"four1", Four3, true},
	}
	for _, c := range cases {
		got, err := ParseLatchMode(c.in)
		if (err != nil) != c.err || got != c.want {
			t.Fatalf("ParseLatchMode(%q) = %v, %v", c.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidMode) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if Four0.String() != "four0" || Clockwise.String() != "cw" {
		t.Fatal("String mismatch")
	}
}
