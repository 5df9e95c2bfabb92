// services/hal/internal/encirq/worker.go
package encirq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rotary-go/drivers/rotary"
	"rotary-go/services/hal/internal/core"
	"rotary-go/x/timex"
)

// Worker owns the decoders of all open encoders. Interrupt handlers and poll
// tickers sample a decoder inside its Slot and post a notification; the
// worker goroutine reads position and direction under the same guard and
// publishes an EncoderEvent when the position moved.
type Worker struct {
	// Written by ISR; MUST NOT block the ISR:
	isrQ    chan *encoder
	stopped chan struct{}

	mu   sync.RWMutex
	encs map[string]*encoder // devID -> encoder

	drops uint32 // ISR drop counter
}

type encoder struct {
	w     *Worker
	devID string
	slot  rotary.Slot
	out   chan core.EncoderEvent

	irq  []core.IRQPin // nil when polled
	stop chan struct{} // poll loop; nil when interrupt-driven

	pending uint32 // 1 while queued on isrQ
	force   uint32 // set by SetPosition

	last int // worker goroutine only
}

func New(isrBuf int) *Worker {
	if isrBuf <= 0 {
		isrBuf = 32
	}
	return &Worker{
		isrQ:    make(chan *encoder, isrBuf),
		stopped: make(chan struct{}),
		encs:    map[string]*encoder{},
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				w.closeAll()
				return
			case e := <-w.isrQ:
				atomic.StoreUint32(&e.pending, 0)
				w.publish(e)
			}
		}
	}()
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.stopped }

// Open installs a decoder for devID and starts sampling it.
func (w *Worker) Open(devID string, spec core.EncoderSpec) (*Stream, error) {
	if spec.Clk == nil || spec.Dt == nil {
		return nil, errNoPins
	}
	buf := spec.Buffer
	if buf <= 0 {
		buf = 8
	}
	e := &encoder{w: w, devID: devID, out: make(chan core.EncoderEvent, buf)}
	e.slot.Install(rotary.New(spec.Clk, spec.Dt, spec.Mode))

	w.mu.Lock()
	if _, dup := w.encs[devID]; dup {
		w.mu.Unlock()
		return nil, errDuplicate
	}
	w.encs[devID] = e
	w.mu.Unlock()

	clk, okA := spec.Clk.(core.IRQPin)
	dt, okB := spec.Dt.(core.IRQPin)
	if spec.Poll == 0 && okA && okB {
		if err := e.attachIRQ(clk, dt); err == nil {
			return &Stream{e: e}, nil
		}
		println("[encirq] irq attach failed, polling:", devID)
	}
	every := spec.Poll
	if every <= 0 {
		every = core.DefaultPoll
	}
	e.stop = make(chan struct{})
	go e.pollLoop(every)
	return &Stream{e: e}, nil
}

// attachIRQ registers the same handler for both edges of both lines. The
// handler body is the decoder sample plus a non-blocking post.
func (e *encoder) attachIRQ(clk, dt core.IRQPin) error {
	handler := func() {
		e.slot.Sample()
		e.w.notify(e)
	}
	if err := clk.SetIRQ(core.EdgeBoth, handler); err != nil {
		return err
	}
	if err := dt.SetIRQ(core.EdgeBoth, handler); err != nil {
		_ = clk.ClearIRQ()
		return err
	}
	e.irq = []core.IRQPin{clk, dt}
	return nil
}

func (e *encoder) pollLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			e.slot.Sample()
			e.w.notify(e)
		}
	}
}

// notify is called from interrupt context. At most one notification per
// encoder is queued; the worker reads the latest state anyway.
func (w *Worker) notify(e *encoder) {
	if !atomic.CompareAndSwapUint32(&e.pending, 0, 1) {
		return
	}
	select {
	case w.isrQ <- e:
	default:
		atomic.StoreUint32(&e.pending, 0)
		atomic.AddUint32(&w.drops, 1) // protect ISR path
	}
}

func (w *Worker) publish(e *encoder) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.encs[e.devID] != e {
		return // closed
	}
	pos, dir, ok := e.slot.Current()
	if !ok {
		return
	}
	forced := atomic.SwapUint32(&e.force, 0) == 1
	if pos == e.last && !forced {
		return
	}
	e.last = pos
	deliver(e.out, core.EncoderEvent{DevID: e.devID, Position: pos, Direction: dir, TSms: timex.NowMs()})
}

// deliver never blocks: when the queue is full the oldest event is dropped
// so the latest position always gets through.
func deliver(ch chan core.EncoderEvent, ev core.EncoderEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (w *Worker) close(e *encoder) {
	for _, p := range e.irq {
		_ = p.ClearIRQ()
	}
	w.mu.Lock()
	if w.encs[e.devID] != e {
		w.mu.Unlock()
		return
	}
	delete(w.encs, e.devID)
	if e.stop != nil {
		close(e.stop)
	}
	close(e.out)
	w.mu.Unlock()
}

func (w *Worker) closeAll() {
	w.mu.RLock()
	all := make([]*encoder, 0, len(w.encs))
	for _, e := range w.encs {
		all = append(all, e)
	}
	w.mu.RUnlock()
	for _, e := range all {
		w.close(e)
	}
}

func (w *Worker) ISRDrops() uint32 { return atomic.LoadUint32(&w.drops) }

// Stream is the caller's view of one open encoder.
type Stream struct{ e *encoder }

var _ core.EncoderStream = (*Stream)(nil)

func (s *Stream) Events() <-chan core.EncoderEvent { return s.e.out }

func (s *Stream) Position() int {
	p, _ := s.e.slot.Position()
	return p
}

func (s *Stream) SetPosition(p int) {
	if s.e.slot.SetPosition(p) {
		atomic.StoreUint32(&s.e.force, 1)
		s.e.w.notify(s.e)
	}
}

func (s *Stream) Polled() bool { return s.e.irq == nil }

func (s *Stream) Close() { s.e.w.close(s.e) }
