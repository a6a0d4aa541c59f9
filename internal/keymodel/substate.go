// Package keymodel implements the DNSSEC policy and key-state data model of
// spec.md §3.4-§3.6: the per-record-class sub-state machine, key and zone
// entities, and the policy template that parameterizes the enforcer.
package keymodel

import "fmt"

// RecordState is one of the five phases a record class can be in for a
// given key, spec.md §3.5/§4.6.
type RecordState int

const (
	// Hidden: not published, no residual cache.
	Hidden RecordState = iota
	// Rumoured: just published; resolvers may not yet see it.
	Rumoured
	// Omnipresent: fully propagated.
	Omnipresent
	// Unretentive: withdrawn but may still live in caches.
	Unretentive
	// NA: this record class does not apply to this key (e.g. RRSIG for a
	// pure KSK that never signs non-DNSKEY RRsets).
	NA
)

func (s RecordState) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Rumoured:
		return "rumoured"
	case Omnipresent:
		return "omnipresent"
	case Unretentive:
		return "unretentive"
	case NA:
		return "na"
	default:
		return "unknown"
	}
}

// introductionOrder and withdrawalOrder give the monotone sequence a
// record's state must follow (spec.md §8 property 5): for an introducing
// key, hidden -> rumoured -> omnipresent; for a retiring key, omnipresent
// -> unretentive -> hidden.
var introductionOrder = map[RecordState]int{
	Hidden:      0,
	Rumoured:    1,
	Omnipresent: 2,
}

var withdrawalOrder = map[RecordState]int{
	Omnipresent: 0,
	Unretentive: 1,
	Hidden:      2,
}

// CanAdvance reports whether transitioning from -> to is monotone along
// the introducing ordering (hidden -> rumoured -> omnipresent -> unretentive
// -> hidden). NA never transitions.
func CanAdvance(from, to RecordState) bool {
	if from == NA || to == NA {
		return false
	}
	// The lifecycle is a single cycle: hidden -> rumoured -> omnipresent
	// -> unretentive -> hidden. Only forward single steps are legal;
	// the enforcer never jumps states.
	order := []RecordState{Hidden, Rumoured, Omnipresent, Unretentive}
	idxOf := func(s RecordState) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		return -1
	}
	fi, ti := idxOf(from), idxOf(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti == (fi+1)%len(order)
}

// DSAtParent tracks the parent-observed state of a DS record, spec.md §3.5.
type DSAtParent int

const (
	DSUnsubmitted DSAtParent = iota
	DSSubmit
	DSSubmitted
	DSSeen
	DSRetract
	DSRetracted
)

func (d DSAtParent) String() string {
	switch d {
	case DSUnsubmitted:
		return "unsubmitted"
	case DSSubmit:
		return "submit"
	case DSSubmitted:
		return "submitted"
	case DSSeen:
		return "seen"
	case DSRetract:
		return "retract"
	case DSRetracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// RecordClass is one of the DNSSEC record classes a key participates in,
// spec.md §3.5: DS, DNSKEY, RRSIG-DNSKEY, and (for ZSKs/CSKs) RRSIG.
type RecordClass int

const (
	ClassDS RecordClass = iota
	ClassDNSKEY
	ClassRRSIGDNSKEY
	ClassRRSIG
)

func (c RecordClass) String() string {
	switch c {
	case ClassDS:
		return "DS"
	case ClassDNSKEY:
		return "DNSKEY"
	case ClassRRSIGDNSKEY:
		return "RRSIG-DNSKEY"
	case ClassRRSIG:
		return "RRSIG"
	default:
		return "unknown"
	}
}

// SubState is the tuple (state, last_change, ttl, minimize) tracked per
// record class per key, spec.md §3.5.
type SubState struct {
	State      RecordState
	LastChange int64 // wall-clock seconds
	TTL        int64 // seconds
	Minimize   bool
}

func (s SubState) String() string {
	return fmt.Sprintf("%s(since=%d,ttl=%d)", s.State, s.LastChange, s.TTL)
}
