package transport

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/corway/sidmux/pkg"
)

// ErrPipeClosed is returned by Send after an end has been closed.
var ErrPipeClosed = errors.New("transport: pipe closed")

// PipeEnd is one side of an in-process duplex link. Messages written with
// Send surface at the other end's Receiver. Useful for tests and for wiring
// two in-process components through the session engine without a real
// transport.
type PipeEnd struct {
	id string

	out chan Message
	in  chan Message

	receiver Receiver

	logger pkg.Logger

	started  *pkg.AtomicBool
	closed   *pkg.AtomicBool
	stop     chan struct{}
	pumpDone chan struct{}
}

// NewPipe returns two connected ends, each buffering up to buffer in-flight
// messages per direction.
func NewPipe(buffer int) (*PipeEnd, *PipeEnd) {
	if buffer <= 0 {
		buffer = 16
	}

	aToB := make(chan Message, buffer)
	bToA := make(chan Message, buffer)

	linkID := uuid.NewString()
	a := newPipeEnd(linkID+"/a", aToB, bToA)
	b := newPipeEnd(linkID+"/b", bToA, aToB)
	return a, b
}

func newPipeEnd(id string, out, in chan Message) *PipeEnd {
	return &PipeEnd{
		id:       id,
		out:      out,
		in:       in,
		logger:   pkg.DefaultLogger,
		started:  pkg.NewAtomicBool(),
		closed:   pkg.NewAtomicBool(),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// ID identifies this end for log correlation.
func (e *PipeEnd) ID() string {
	return e.id
}

func (e *PipeEnd) SetLogger(logger pkg.Logger) {
	e.logger = logger
}

// SetReceiver must be called before Start.
func (e *PipeEnd) SetReceiver(receiver Receiver) {
	e.receiver = receiver
}

// Start launches the inbound pump. Messages arriving from the peer are handed
// to the receiver one at a time; a nil receiver drops them.
func (e *PipeEnd) Start() error {
	if e.closed.Load() {
		return ErrPipeClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("transport: pipe already started")
	}

	go func() {
		defer pkg.Recover()
		defer close(e.pumpDone)

		for {
			select {
			case <-e.stop:
				return
			case msg := <-e.in:
				if e.receiver == nil {
					e.logger.Debugf("pipe %s: no receiver, dropping %d bytes", e.id, len(msg))
					continue
				}
				e.receiver(msg)
			}
		}
	}()

	return nil
}

// Send queues msg for the peer. The payload is copied, so the caller may
// reuse its buffer immediately.
func (e *PipeEnd) Send(msg Message) error {
	if e.closed.Load() {
		return ErrPipeClosed
	}

	buf := append(Message(nil), msg...)
	select {
	case e.out <- buf:
		return nil
	default:
		return fmt.Errorf("transport: pipe %s send buffer full", e.id)
	}
}

// Close stops this end's pump and rejects further sends. Messages already
// queued toward a closed end are dropped.
func (e *PipeEnd) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(e.stop)
	if e.started.Load() {
		<-e.pumpDone
	}

	return nil
}
