package rotary

// Slot holds at most one Decoder behind a critical section so it can be shared
// between interrupt handlers and the main loop. On bare-metal targets the
// guard disables interrupts; on hosted builds it is a mutex.
//
// A Slot is meant to be a package-level variable in firmware:
//
//	var encoder rotary.Slot
//
//	func onEdge(machine.Pin) { encoder.Sample() }
//
// The zero value is an empty slot.
type Slot struct {
	g   guard
	dec Decoder
	ok  bool
}

// Install places d in the slot, replacing any previous decoder.
func (s *Slot) Install(d Decoder) {
	s.g.lock()
	s.dec = d
	s.ok = true
	s.g.unlock()
}

// Take removes and returns the decoder.
func (s *Slot) Take() (Decoder, bool) {
	s.g.lock()
	d, ok := s.dec, s.ok
	s.dec = Decoder{}
	s.ok = false
	s.g.unlock()
	return d, ok
}

// Sample runs CheckState on the installed decoder. It is the default interrupt
// handler body for both encoder lines and reports false if the slot is empty.
func (s *Slot) Sample() bool {
	s.g.lock()
	ok := s.ok
	if ok {
		s.dec.CheckState()
	}
	s.g.unlock()
	return ok
}

// Current returns position and direction read in one critical section, so
// the caller never sees a half-applied sample. The direction is consumed.
func (s *Slot) Current() (pos int, dir Direction, ok bool) {
	s.g.lock()
	if s.ok {
		pos, dir, ok = s.dec.Position(), s.dec.Direction(), true
	}
	s.g.unlock()
	return pos, dir, ok
}

// Position returns the logical position without consuming the direction.
func (s *Slot) Position() (int, bool) {
	s.g.lock()
	p, ok := s.dec.pos, s.ok
	s.g.unlock()
	return p, ok
}

// SetPosition overrides the logical position of the installed decoder.
func (s *Slot) SetPosition(p int) bool {
	s.g.lock()
	ok := s.ok
	if ok {
		s.dec.SetPosition(p)
	}
	s.g.unlock()
	return ok
}

// Do runs fn with exclusive access to the decoder, e.g. to clear a pin's
// interrupt-pending flag through Pins before calling CheckState. fn must not
// block and must not call back into the Slot.
func (s *Slot) Do(fn func(d *Decoder)) bool {
	s.g.lock()
	ok := s.ok
	if ok {
		fn(&s.dec)
	}
	s.g.unlock()
	return ok
}
