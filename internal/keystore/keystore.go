// Package keystore defines the narrow PKCS#11-style contract spec.md §6.1
// requires: generate a key, find it later by opaque locator, sign with it,
// remove it, and produce random bytes. The core never talks to a real HSM
// directly; it only ever talks through this interface.
package keystore

import (
	"crypto"
	"fmt"
)

// Kind distinguishes the narrow error taxonomy spec.md §6.1 calls out for
// the keystore contract specifically (a subset of internal/errs.Kind).
type Kind int

const (
	NotFound Kind = iota
	IO
	Backend
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case IO:
		return "io"
	case Backend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged keystore failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("keystore: %s: %s: %v", e.Op, e.Kind, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Handle is an opaque reference to a key inside the keystore, returned by
// FindByLocator and consumed by Sign/Remove. Implementations may embed
// whatever session/object-handle data they need; callers must treat it as
// opaque (spec.md §6.1).
type Handle interface {
	Locator() string
}

// Keystore is the contract spec.md §6.1 and §1 describe: "generate_key,
// find_key_by_locator, sign(key, data), remove_key, random_bytes".
type Keystore interface {
	Initialize() error
	Finalize() error

	// Generate creates a new key of the given algorithm/bit length in the
	// named repository and returns its opaque locator. Blocking.
	Generate(repository string, algorithm uint8, bits int) (locator string, err error)

	// FindByLocator resolves a previously generated key's handle, or
	// returns a NotFound *Error if it no longer exists.
	FindByLocator(locator string) (Handle, error)

	// Sign produces a signature over data using the key behind handle.
	// The caller is responsible for knowing which crypto.SignerOpts the
	// key's algorithm requires (DNSSEC algorithms are fixed-hash, so in
	// practice this is always crypto.Hash(0) or a raw PureEdDSA/ECDSA
	// signer via crypto.Signer).
	Sign(handle Handle, data []byte, opts crypto.SignerOpts) (signature []byte, err error)

	// Remove destroys the key behind handle. Idempotent: removing an
	// already-absent key is not an error.
	Remove(handle Handle) error

	// RandomBytes returns n cryptographically random bytes, used for
	// NSEC3 salts and similar (spec.md §6.1).
	RandomBytes(n int) ([]byte, error)
}
