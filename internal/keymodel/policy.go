package keymodel

import (
	"fmt"
	"strings"
)

// KeyRole is a policy-key's DNSSEC role, spec.md §3.4.
type KeyRole int

const (
	RoleKSK KeyRole = iota
	RoleZSK
	RoleCSK
)

func (r KeyRole) String() string {
	switch r {
	case RoleKSK:
		return "KSK"
	case RoleZSK:
		return "ZSK"
	case RoleCSK:
		return "CSK"
	default:
		return "unknown"
	}
}

// ParseKeyRole parses the case-insensitive role names the operator
// command surface accepts, spec.md §6.3.
func ParseKeyRole(s string) (KeyRole, error) {
	switch strings.ToUpper(s) {
	case "KSK":
		return RoleKSK, nil
	case "ZSK":
		return RoleZSK, nil
	case "CSK":
		return RoleCSK, nil
	default:
		return 0, fmt.Errorf("keymodel: unknown key role %q", s)
	}
}

// DenialMode selects the authenticated denial-of-existence scheme, spec.md
// §3.4.
type DenialMode int

const (
	DenialNSEC DenialMode = iota
	DenialNSEC3
)

// SOASerialStrategy is the SOA serial number policy, spec.md §3.4/§4.7.
type SOASerialStrategy int

const (
	SerialCounter SOASerialStrategy = iota
	SerialDateCounter
	SerialUnixTime
	SerialKeep
)

// PolicyKey is one policy-key template: how many keys of a given role must
// exist, and their lifecycle parameters, spec.md §3.4.
type PolicyKey struct {
	Role            KeyRole
	Algorithm       uint8 // dns.DNSKEY algorithm number
	Bits            int
	Lifetime        int64 // seconds; 0 means "no automatic rollover"
	RepositoryName  string
	StandbyCount    int
	RFC5011         bool
	ManualRollover  bool
	Minimize        bool
}

// NSEC3Params configures NSEC3 denial-of-existence, spec.md §3.4.
type NSEC3Params struct {
	Algorithm       uint8
	Iterations      uint16
	SaltLength      int
	Salt            string
	ResaltInterval  int64 // seconds
}

// SignatureTiming controls resign cadence and validity windows, spec.md §3.4.
type SignatureTiming struct {
	Resign          int64 // seconds between resign passes
	Refresh         int64 // seconds before expiry to refresh
	Jitter          int64 // seconds of random inception jitter
	InceptionOffset int64 // seconds subtracted from now for RRSIG inception
	ValidityDefault int64
	ValidityDenial  int64
	ValidityKeyset  int64
	MaxZoneTTL      int64
}

// ZoneTiming controls zone-side propagation and SOA parameters, spec.md §3.4.
type ZoneTiming struct {
	PropagationDelay int64
	SOATTL           int64
	SOAMinimum       int64
	SerialStrategy   SOASerialStrategy
}

// ParentTiming controls parent-side (registry/registrar) propagation and DS
// parameters, spec.md §3.4.
type ParentTiming struct {
	RegistrationDelay int64
	PropagationDelay  int64
	DSTTL             int64
	SOATTL            int64
	SOAMinimum        int64
}

// Policy is the immutable-during-one-pass per-zone policy, spec.md §3.4.
// "Immutable during one enforcer pass" means the enforcer loads one
// snapshot of a Policy at the start of Enforce and never mutates it; policy
// changes only take effect on the zone's next pass.
type Policy struct {
	ID   string
	Name string

	Signature SignatureTiming
	Denial    DenialMode
	NSEC3     NSEC3Params

	Keys []PolicyKey

	Zone   ZoneTiming
	Parent ParentTiming
}

// PublishSafety and RetireSafety are the extra margins spec.md §4.6 adds on
// top of ttl+propagation_delay for admissibility checks ("now >=
// last_change + ttl + propagation_delay + publish_safety"). The source
// material leaves them as a zero-or-configured margin beyond the
// already-conservative ttl+propagation sum; we default to zero. These are
// process-wide, not per-policy: the daemon sets them at startup from the
// Enforcer section of its configuration.
var (
	PublishSafety int64 = 0
	RetireSafety  int64 = 0
)

// NextWakeGrace is the "plus a grace of one second" spec.md §4.6 adds to
// the computed next-wake time, so the enforcer wakes strictly after (not
// exactly at) an admissibility boundary.
const NextWakeGrace = 1

