package keymodel

// Zone carries the per-zone identity, adapters, and rollover/TTL-overlap
// state of spec.md §3.6.
type Zone struct {
	Name                string
	PolicyID            string
	InputAdapter        string // file path or DNS connection descriptor
	OutputAdapter       string
	SignconfPath        string
	SignconfNeedsWriting bool

	RollKSKNow bool
	RollZSKNow bool
	RollCSKNow bool

	NextKSKRoll int64
	NextZSKRoll int64
	NextCSKRoll int64

	// TTLEndDS/DK/RS are the wall-clock times at which residual cached
	// records of each class expire; used as admissibility conditions for
	// state transitions (spec.md §3.6, §4.6).
	TTLEndDS int64
	TTLEndDK int64
	TTLEndRS int64

	// OutboundSerial is the SOA serial last written by the signer driver
	// (spec.md §4.7); InboundSerial is the serial last observed on read.
	// Persisting both lets a restarted signer resume its SOA serial
	// strategy (counter/date) within one resign period instead of
	// re-deriving it from scratch, spec.md §4.7 "signer clock state".
	InboundSerial  uint32
	OutboundSerial uint32

	Keys []*Key
}

// PendingRoll reports whether role has a forced rollover pending,
// spec.md §4.6 "Pending-rollover flags".
func (z *Zone) PendingRoll(role KeyRole) bool {
	switch role {
	case RoleKSK:
		return z.RollKSKNow
	case RoleZSK:
		return z.RollZSKNow
	case RoleCSK:
		return z.RollCSKNow
	default:
		return false
	}
}

// ClearPendingRoll resets the forced-rollover flag for role once the
// enforcer has started withdrawing that role's current key(s); the
// successor is generated afterwards by the deficit path.
func (z *Zone) ClearPendingRoll(role KeyRole) {
	switch role {
	case RoleKSK:
		z.RollKSKNow = false
	case RoleZSK:
		z.RollZSKNow = false
	case RoleCSK:
		z.RollCSKNow = false
	}
}

// KeysWithRole returns the zone's keys matching role.
func (z *Zone) KeysWithRole(role KeyRole) []*Key {
	var out []*Key
	for _, k := range z.Keys {
		if k.Role == role {
			out = append(out, k)
		}
	}
	return out
}

// KeyByLocator finds a key by its keystore locator.
func (z *Zone) KeyByLocator(locator string) *Key {
	for _, k := range z.Keys {
		if k.Locator == locator {
			return k
		}
	}
	return nil
}
