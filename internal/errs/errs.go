// Package errs carries the error taxonomy callbacks use to decide a
// reschedule hint (spec.md §7): callbacks never throw across the schedule
// boundary, they translate everything into one of these kinds first.
package errs

import "fmt"

// Kind is one of the error categories spec.md §7 requires the core to
// distinguish.
type Kind int

const (
	// ASSERT is an internal precondition violated; fatal, abort the
	// process. Never returned to a caller that can recover from it.
	ASSERT Kind = iota
	// CONFIG is a policy or zonelist that is unusable; reported to the
	// operator, no task reschedules from it.
	CONFIG
	// BACKEND is a database or keystore error; the owning task returns
	// DEFER and backs off exponentially.
	BACKEND
	// CONFLICT is an optimistic-concurrency collision; the owning task
	// returns PROMPTLY to retry immediately against a fresh snapshot.
	CONFLICT
	// NOT_FOUND is a requested entity that does not exist; propagated to
	// the caller as a plain error, no automatic retry.
	NOT_FOUND
	// IO is a zone file / pipe / socket error; the owning task returns
	// DEFER.
	IO
	// UNCHANGED is not an error: "FIFO full", "nothing to sign". Kept in
	// the same taxonomy because call sites branch on Kind either way.
	UNCHANGED
)

func (k Kind) String() string {
	switch k {
	case ASSERT:
		return "ASSERT"
	case CONFIG:
		return "CONFIG"
	case BACKEND:
		return "BACKEND"
	case CONFLICT:
		return "CONFLICT"
	case NOT_FOUND:
		return "NOT_FOUND"
	case IO:
		return "IO"
	case UNCHANGED:
		return "UNCHANGED"
	default:
		return "UNKNOWN"
	}
}

// Error is a Kind-tagged error, analogous to the informal error strings
// threaded through tdns/keystore.go and music/fsmops.go, but typed so the
// task layer can switch on Kind instead of matching substrings.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "enforcer.generateKey"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to BACKEND for unrecognized errors — the conservative
// choice, since an unrecognized error from a DB or keystore round-trip
// should back off rather than spin.
func KindOf(err error) Kind {
	if err == nil {
		return UNCHANGED
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return BACKEND
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
