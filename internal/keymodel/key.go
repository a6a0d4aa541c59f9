package keymodel

// Key is one key instance in a zone, spec.md §3.5.
type Key struct {
	Locator   string // opaque keystore handle
	Algorithm uint8
	Bits      int
	Role      KeyRole
	Keytag    uint16
	Inception int64

	// Introducing is true while the key is being brought into the zone,
	// false while it is being withdrawn (spec.md §3.5).
	Introducing bool

	DSAtParent DSAtParent

	DS          SubState
	DNSKEY      SubState
	RRSIGDNSKEY SubState
	// RRSIG only applies to ZSKs and CSKs (spec.md §3.5); a pure KSK
	// carries RecordState NA here.
	RRSIG SubState

	// Dependencies lists the keys whose movement is required before this
	// one may proceed in a given record class (spec.md §3.5/§4.6): this
	// captures cross-key ordering so a parent-side DS swap and a
	// zone-side DNSKEY swap stay in lock-step.
	Dependencies []Dependency
}

// Dependency names another key (by locator) and the record class in which
// this key depends on that key's state, spec.md §3.5/§4.6.
type Dependency struct {
	KeyLocator string
	Class      RecordClass
}

// SubStateFor returns a pointer to the SubState for the given class, so
// callers can read/mutate uniformly instead of switching on class at every
// call site. For ClassRRSIG on a KSK-only key it returns &k.RRSIG, whose
// State is NA (spec.md §3.5); it returns nil only for an unknown class.
func (k *Key) SubStateFor(c RecordClass) *SubState {
	switch c {
	case ClassDS:
		return &k.DS
	case ClassDNSKEY:
		return &k.DNSKEY
	case ClassRRSIGDNSKEY:
		return &k.RRSIGDNSKEY
	case ClassRRSIG:
		return &k.RRSIG
	default:
		return nil
	}
}

// AllClasses lists the record classes tracked for this key; RRSIG is
// omitted for a pure KSK (RoleKSK with RRSIG.State == NA).
func (k *Key) AllClasses() []RecordClass {
	classes := []RecordClass{ClassDS, ClassDNSKEY, ClassRRSIGDNSKEY}
	if k.RRSIG.State != NA {
		classes = append(classes, ClassRRSIG)
	}
	return classes
}

// FullyHidden reports whether every tracked record class for this key has
// reached Hidden, the precondition (together with the retention safety
// window) for key removal, spec.md §3.5 "Lifecycle".
func (k *Key) FullyHidden() bool {
	for _, c := range k.AllClasses() {
		st := k.SubStateFor(c)
		if st.State != Hidden {
			return false
		}
	}
	return true
}
