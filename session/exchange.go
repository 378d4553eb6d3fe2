package session

import (
	"sync"
	"time"
)

type result struct {
	msg []byte
	err error
}

// exchange is one outstanding send-and-await-reply operation. It is settled
// exactly once; late timer firings, sweep passes or duplicate replies against
// an already-settled exchange are no-ops.
type exchange struct {
	done chan result // buffered, capacity 1

	once sync.Once

	mu      sync.Mutex
	timer   *time.Timer // per-call timeout, nil unless armed
	settled bool
}

func newExchange() *exchange {
	return &exchange{done: make(chan result, 1)}
}

// arm starts the per-call timeout timer. Arming after settlement is a no-op.
func (e *exchange) arm(d time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settled {
		return
	}
	e.timer = time.AfterFunc(d, fn)
}

// settle delivers the exchange outcome, reporting whether this call won the
// race. The timer, if armed, is stopped so it cannot fire against a
// settled exchange.
func (e *exchange) settle(r result) bool {
	won := false
	e.once.Do(func() {
		e.mu.Lock()
		e.settled = true
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()

		e.done <- r
		won = true
	})
	return won
}

func (e *exchange) reject(err error) bool {
	return e.settle(result{err: err})
}
