package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/corway/sidmux/pkg"
)

// Session is one logical request/reply conversation, identified by a numeric
// id unique within its Port. A session hosts at most one outstanding exchange
// at a time; exchanges are strictly sequential.
type Session struct {
	id  int64
	key string
	p   *Port

	mu         sync.Mutex
	exch       *exchange
	lastSendAt time.Time
	destroyed  bool

	retrying *pkg.AtomicBool

	// per-session overrides, merged over port defaults at Create time
	timeout       time.Duration
	retryCount    int
	retryInterval time.Duration
}

// ID returns the session id assigned by the owning Port.
func (s *Session) ID() int64 {
	return s.id
}

// Pending reports whether an exchange is currently awaiting its reply.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exch != nil
}

// Destroyed reports whether End has been called. A destroyed session is not
// reusable; further sends fail with an invalid-session error.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Retrying reports whether a retry attempt sequence is in progress. The
// sweep skips retrying sessions so it cannot race an active backoff loop.
func (s *Session) Retrying() bool {
	return s.retrying.Load()
}

func (s *Session) lastSend() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSendAt
}

// Send stamps msg with the session id, dispatches it through the Port's
// sender and blocks until the exchange settles: a matching inbound reply
// (Next), a timeout (sweep or per-call timer), an explicit Cancel/Abort, or
// ctx expiry.
//
// With a retry budget (WithRetryCount here or at Create), failed attempts are
// retried after the retry interval, up to retryCount additional times.
// Timeout and abort failures are retried uniformly; a cancellation or an
// invalid-session failure terminates the whole loop immediately and is
// surfaced as-is. On exhaustion the last observed error is returned.
// The background sweep skips sessions that are mid-retry, so a retrying
// Send is only bounded by its own deadline: pair a retry budget with
// WithTimeout or a ctx deadline, or attempts can wait indefinitely.
func (s *Session) Send(ctx context.Context, msg []byte, opts ...CallOption) ([]byte, error) {
	co := applyCallOptions(opts)

	retryCount := s.retryCount
	if co.retryCountSet {
		retryCount = co.retryCount
	}
	retryInterval := s.retryInterval
	if co.retryInterval > 0 {
		retryInterval = co.retryInterval
	}

	if retryCount <= 0 {
		return s.sendOnce(ctx, msg, co.timeout)
	}

	defer s.retrying.Store(false)

	var lastErr error
	for attempt := 0; attempt <= retryCount; attempt++ {
		if attempt > 0 {
			// mid-backoff; keeps the sweep from racing the loop
			s.retrying.Store(true)
		}

		reply, err := s.sendOnce(ctx, msg, co.timeout)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if errors.Is(err, ErrCanceled) || errors.Is(err, ErrInvalidSession) || ctx.Err() != nil {
			break
		}
		if attempt == retryCount {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	if lastErr == nil {
		lastErr = newAbortError(s.id, nil)
	}
	return nil, lastErr
}

// sendOnce performs a single attempt with no retry.
func (s *Session) sendOnce(ctx context.Context, msg []byte, callTimeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil, newInvalidError(s.id)
	}
	if prev := s.exch; prev != nil {
		// single-outstanding-exchange invariant: settle the earlier waiter
		// instead of stranding its goroutine
		prev.reject(newCancelError(s.id))
	}
	exch := newExchange()
	s.exch = exch
	s.lastSendAt = time.Now()
	s.mu.Unlock()

	stamped, err := sjson.SetBytes(msg, s.p.idName(), s.id)
	if err != nil {
		s.settleIfCurrent(exch, result{err: newAbortError(s.id, err)})
	} else if err := s.p.send(stamped); err != nil {
		// synchronous sender failure; the retry loop treats it like any
		// other attempt failure
		s.settleIfCurrent(exch, result{err: newAbortError(s.id, err)})
	} else if callTimeout > 0 {
		exch.arm(callTimeout, func() {
			s.settleIfCurrent(exch, result{err: newTimeoutError(s.id)})
		})
	}

	select {
	case r := <-exch.done:
		return r.msg, r.err
	case <-ctx.Done():
		s.settleIfCurrent(exch, result{err: newCancelError(s.id)})
		return nil, ctx.Err()
	}
}

// Post is the fire-and-forget variant: stamp and dispatch without creating a
// pending exchange. No reply is expected.
func (s *Session) Post(msg []byte) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return newInvalidError(s.id)
	}
	s.lastSendAt = time.Now()
	s.mu.Unlock()

	stamped, err := sjson.SetBytes(msg, s.p.idName(), s.id)
	if err != nil {
		return newAbortError(s.id, err)
	}
	if err := s.p.send(stamped); err != nil {
		return newAbortError(s.id, err)
	}
	return nil
}

// Next resolves the pending exchange with the verbatim reply, id field
// included. Reports false when nothing was pending, which is normal for late
// or duplicate replies.
func (s *Session) Next(msg []byte) bool {
	return s.settleCurrent(result{msg: msg})
}

// Timeout rejects the pending exchange with a timeout error. The session
// itself stays registered and usable for a later Send.
func (s *Session) Timeout() bool {
	return s.settleCurrent(result{err: newTimeoutError(s.id)})
}

// Cancel rejects the pending exchange with a cancellation error.
func (s *Session) Cancel() bool {
	return s.settleCurrent(result{err: newCancelError(s.id)})
}

// Abort rejects the pending exchange, wrapping cause when given.
func (s *Session) Abort(cause error) bool {
	return s.settleCurrent(result{err: newAbortError(s.id, cause)})
}

// End cancels any outstanding exchange, marks the session destroyed and
// removes it from the owning Port's table. Idempotent: only the call that
// performs the destroy transition touches the table, and removal is by
// identity, so a stale End on an already-ended handle can never evict a
// newer session that has since recycled the id.
func (s *Session) End() {
	exch, ok := s.terminate()
	if !ok {
		return
	}
	if exch != nil {
		exch.reject(newCancelError(s.id))
	}
	s.p.removeSession(s)
}

// terminate flips the session into its destroyed state, reporting whether
// this call performed the transition, and detaches the outstanding exchange,
// if any, for the caller to settle.
func (s *Session) terminate() (*exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil, false
	}
	s.destroyed = true
	exch := s.exch
	s.exch = nil
	return exch, true
}

// settleCurrent detaches and settles the current exchange, whichever it is.
func (s *Session) settleCurrent(r result) bool {
	s.mu.Lock()
	exch := s.exch
	s.exch = nil
	s.mu.Unlock()

	if exch == nil {
		return false
	}
	return exch.settle(r)
}

// settleIfCurrent settles exch, detaching it only when it is still the
// session's current exchange. Used by per-exchange timers so a stale firing
// can never touch a newer exchange.
func (s *Session) settleIfCurrent(exch *exchange, r result) {
	s.mu.Lock()
	if s.exch == exch {
		s.exch = nil
	}
	s.mu.Unlock()

	exch.settle(r)
}
