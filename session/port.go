package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/corway/sidmux/pkg"
)

// ClearBehavior selects how Clear settles the sessions it removes.
type ClearBehavior int

const (
	ClearAbort ClearBehavior = iota
	ClearCancel
	ClearTimeout
)

// Port is a namespaced pool of sessions sharing one id space and one
// outbound sender. It allocates and recycles ids and runs the periodic sweep
// enforcing per-exchange timeouts and whole-session max-lifetime eviction.
type Port struct {
	name string
	opts Options

	sessions cmap.ConcurrentMap[string, *Session]

	idMu  sync.Mutex
	idSeq int64

	destroyed *pkg.AtomicBool
	sweepStop chan struct{}
	sweepDone chan struct{}

	logger pkg.Logger
}

// newPort starts the sweep immediately; the caller has validated opts.
func newPort(name string, opts Options) *Port {
	p := &Port{
		name:      name,
		opts:      opts,
		sessions:  cmap.New[*Session](),
		destroyed: pkg.NewAtomicBool(),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
		logger:    opts.Logger,
	}

	go func() {
		defer pkg.Recover()
		p.sweepLoop()
	}()

	return p
}

func (p *Port) Name() string {
	return p.name
}

// Count returns the number of live sessions.
func (p *Port) Count() int {
	return p.sessions.Count()
}

func (p *Port) idName() string {
	return p.opts.SessionIDName
}

func sidKey(sid int64) string {
	return strconv.FormatInt(sid, 10)
}

// Create allocates a session id, merges per-session overrides over the port
// defaults and registers the new session.
func (p *Port) Create(opts ...CallOption) (*Session, error) {
	if p.destroyed.Load() {
		return nil, fmt.Errorf("port %q: destroyed", p.name)
	}

	co := applyCallOptions(opts)

	p.idMu.Lock()
	defer p.idMu.Unlock()

	id, err := p.allocateID()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:            id,
		key:           sidKey(id),
		p:             p,
		lastSendAt:    time.Now(),
		retrying:      pkg.NewAtomicBool(),
		timeout:       p.opts.SessionTimeout,
		retryCount:    p.opts.RetryCount,
		retryInterval: p.opts.RetryInterval,
	}
	if co.timeout > 0 {
		s.timeout = co.timeout
	}
	if co.retryCountSet {
		s.retryCount = co.retryCount
	}
	if co.retryInterval > 0 {
		s.retryInterval = co.retryInterval
	}

	p.sessions.Set(s.key, s)
	return s, nil
}

// allocateID scans forward from the sequence counter, wrapping once, for the
// first unoccupied id. When every slot is live the overflow callback names a
// session to evict; its pending exchange, if any, is canceled before the id
// is reused. The caller holds idMu.
func (p *Port) allocateID() (int64, error) {
	max := p.opts.MaxSessionCount
	for i := int64(1); i <= max; i++ {
		cand := p.idSeq + i
		if cand > max {
			cand -= max
		}
		if !p.sessions.Has(sidKey(cand)) {
			p.idSeq = cand
			return cand, nil
		}
	}

	if p.opts.OnSessionOverflow == nil {
		return 0, fmt.Errorf("port %q: session pool exhausted (%d live sessions)", p.name, max)
	}

	sid := p.opts.OnSessionOverflow(p)
	if sid <= 0 || sid > max {
		return 0, fmt.Errorf("port %q: overflow callback returned id %d outside [1, %d]", p.name, sid, max)
	}
	if prev, ok := p.sessions.Get(sidKey(sid)); ok {
		if exch, ok := prev.terminate(); ok && exch != nil {
			exch.reject(newCancelError(prev.id))
		}
		p.sessions.Remove(sidKey(sid))
		p.logger.Debugf("port %q: overflow evicted session %d", p.name, sid)
	}
	p.idSeq = sid
	return sid, nil
}

// defaultOverflow reclaims the lowest live id, the oldest-first
// approximation. Falls back to 1 for an empty pool.
func defaultOverflow(p *Port) int64 {
	lowest := int64(0)
	p.Range(func(s *Session) bool {
		if lowest == 0 || s.ID() < lowest {
			lowest = s.ID()
		}
		return true
	})
	if lowest == 0 {
		lowest = 1
	}
	return lowest
}

// Get returns the live session with the given id.
func (p *Port) Get(sid int64) (*Session, bool) {
	return p.sessions.Get(sidKey(sid))
}

// Remove deletes the session from the table without settling it; callers
// must have settled it already. The id becomes allocatable again.
func (p *Port) Remove(sid int64) {
	p.sessions.Remove(sidKey(sid))
}

// removeSession deletes s from the table only if s is still the session
// registered under its id, protecting a recycled id's new occupant from a
// retained handle of the old one.
func (p *Port) removeSession(s *Session) {
	p.sessions.RemoveCb(s.key, func(_ string, cur *Session, exists bool) bool {
		return exists && cur == s
	})
}

// Range iterates the live sessions; f returning false stops the iteration.
func (p *Port) Range(f func(s *Session) bool) {
	for item := range p.sessions.IterBuffered() {
		if !f(item.Val) {
			return
		}
	}
}

// send delegates to the configured sender. Errors propagate untouched; the
// session layer funnels them into exchange rejection.
func (p *Port) send(msg []byte) error {
	return p.opts.Sender(msg)
}

// Request is the one-shot convenience: create a session, send, end the
// session, return the reply.
func (p *Port) Request(ctx context.Context, msg []byte, opts ...CallOption) ([]byte, error) {
	s, err := p.Create(opts...)
	if err != nil {
		return nil, err
	}
	defer s.End()

	return s.Send(ctx, msg, opts...)
}

// CancelAll cancels every live session's pending exchange. Sessions stay
// registered.
func (p *Port) CancelAll() {
	p.Range(func(s *Session) bool {
		s.Cancel()
		return true
	})
}

// TimeoutAll times out every live session's pending exchange.
func (p *Port) TimeoutAll() {
	p.Range(func(s *Session) bool {
		s.Timeout()
		return true
	})
}

// AbortAll aborts every live session's pending exchange with cause.
func (p *Port) AbortAll(cause error) {
	p.Range(func(s *Session) bool {
		s.Abort(cause)
		return true
	})
}

// Clear bulk-settles every live session with the given behavior, empties the
// table and resets the id sequence.
func (p *Port) Clear(behavior ClearBehavior) {
	p.Range(func(s *Session) bool {
		if exch, ok := s.terminate(); ok && exch != nil {
			switch behavior {
			case ClearTimeout:
				exch.reject(newTimeoutError(s.id))
			case ClearCancel:
				exch.reject(newCancelError(s.id))
			default:
				exch.reject(newAbortError(s.id, nil))
			}
		}
		return true
	})
	p.sessions.Clear()

	p.idMu.Lock()
	p.idSeq = 0
	p.idMu.Unlock()
}

// Destroy stops the sweep and clears all sessions. Idempotent.
func (p *Port) Destroy() {
	if !p.destroyed.CompareAndSwap(false, true) {
		return
	}

	close(p.sweepStop)
	<-p.sweepDone

	p.Clear(ClearAbort)
}

// sweepLoop self-reschedules rather than ticking at a fixed rate; drift is
// acceptable, overlap is not.
func (p *Port) sweepLoop() {
	defer close(p.sweepDone)

	for {
		interval := p.opts.SessionTimeout / 2
		if interval <= 0 {
			interval = time.Second
		}

		timer := time.NewTimer(interval)
		select {
		case <-p.sweepStop:
			timer.Stop()
			return
		case <-timer.C:
			p.inspect()
		}
	}
}

// inspect is the sweep body: enforce per-exchange timeouts on pending
// sessions and max-lifetime eviction on idle ones.
func (p *Port) inspect() {
	now := time.Now()
	p.Range(func(s *Session) bool {
		p.inspectSession(s, now)
		return true
	})
}

func (p *Port) inspectSession(s *Session, now time.Time) {
	defer func() {
		// the sweep must survive any single session's inspection
		if r := recover(); r != nil {
			p.logger.Errorf("port %q: sweep panic on session %d: %v", p.name, s.ID(), r)
		}
	}()

	if s.Retrying() {
		return
	}

	idle := now.Sub(s.lastSend())
	if s.Pending() {
		if idle > s.timeout {
			p.logger.Debugf("port %q: session %d exchange timed out after %v", p.name, s.ID(), idle)
			s.Timeout()
		}
		return
	}

	if idle > p.opts.SessionMaxLife {
		p.logger.Debugf("port %q: session %d exceeded max life, evicting", p.name, s.ID())
		s.End()
	}
}
