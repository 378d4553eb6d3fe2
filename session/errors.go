package session

import "fmt"

// Kind classifies how an exchange failed.
type Kind int

const (
	// KindTimeout means no reply arrived within the effective timeout window.
	KindTimeout Kind = iota + 1
	// KindCancel means the caller explicitly canceled the outstanding exchange.
	KindCancel
	// KindAbort carries an arbitrary underlying cause, e.g. a sender failure.
	KindAbort
	// KindInvalid means the operation was attempted on a destroyed session.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCancel:
		return "cancel"
	case KindAbort:
		return "abort"
	case KindInvalid:
		return "invalid session"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching. Each matches every error of its kind
// regardless of session id or cause.
var (
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrCanceled       = &Error{Kind: KindCancel}
	ErrAborted        = &Error{Kind: KindAbort}
	ErrInvalidSession = &Error{Kind: KindInvalid}
)

// Error is the failure type surfaced by Send and Request. Callers branch on
// the kind, via errors.Is against the sentinels or errors.As for the struct.
type Error struct {
	Kind Kind
	Sid  int64

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("session %d: %s: %v", e.Sid, e.Kind, e.cause)
	}
	if e.Sid == 0 {
		return "session: " + e.Kind.String()
	}
	return fmt.Sprintf("session %d: %s", e.Sid, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error of the same kind. A sentinel (zero Sid) matches
// any session; a concrete target must also match the session id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Sid != 0 && t.Sid != e.Sid {
		return false
	}
	return t.Kind == e.Kind
}

func newTimeoutError(sid int64) *Error {
	return &Error{Kind: KindTimeout, Sid: sid}
}

func newCancelError(sid int64) *Error {
	return &Error{Kind: KindCancel, Sid: sid}
}

func newAbortError(sid int64, cause error) *Error {
	return &Error{Kind: KindAbort, Sid: sid, cause: cause}
}

func newInvalidError(sid int64) *Error {
	return &Error{Kind: KindInvalid, Sid: sid}
}
