// Package zonefile implements the master-file zone adapter of spec.md
// §6.4: standard RFC 1035 master-file syntax on input and output, with
// $INCLUDE followed recursively to a depth of 10 and RRset canonical
// ordering on write. Grounded on tdns/zone_utils.go's ReadZoneFile/WriteFile
// and tdns/dnsutils.go's ParseZoneFromReader (dns.NewZoneParser usage).
package zonefile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// MaxIncludeDepth bounds $INCLUDE recursion, spec.md §6.4.
const MaxIncludeDepth = 10

// RRset groups same-owner same-type records together with any RRSIGs
// covering them, mirroring tdns's RRset shape (tdns/dnsutils.go).
type RRset struct {
	Name   string
	Type   uint16
	RRs    []dns.RR
	RRSIGs []dns.RR
}

// Zone is the in-memory form a zone takes between read and write, spec.md
// §6.4/§4.7 "read the zone into the in-memory view".
type Zone struct {
	Origin string
	TTL    uint32
	// rrsets is keyed by owner name then rrtype, matching tdns's
	// per-owner RRtypes map (tdns/dnsutils.go OwnerData.RRtypes).
	rrsets map[string]map[uint16]*RRset
	// owners preserves first-seen order; Write re-sorts canonically, so
	// this is only used to make repeated reads of an unchanged file
	// deterministic before any signing touches the set.
	owners []string
}

// NewZone builds an empty Zone for origin.
func NewZone(origin string) *Zone {
	return &Zone{Origin: dns.Fqdn(origin), rrsets: make(map[string]map[uint16]*RRset)}
}

// Owners returns the zone's owner names. Order is insertion order; callers
// that need canonical order should use SortedOwners.
func (z *Zone) Owners() []string { return append([]string(nil), z.owners...) }

// SortedOwners returns owner names in ascending lexicographic order, the
// same "canonical enough" approximation tdns/nsec.go's ComputeNsec uses
// (sort.Strings over owner names) rather than a full RFC 4034 §6.1
// label-reversed comparator.
func (z *Zone) SortedOwners() []string {
	out := z.Owners()
	sort.Strings(out)
	return out
}

// RRsets returns the RRsets at name, keyed by type.
func (z *Zone) RRsets(name string) map[uint16]*RRset {
	return z.rrsets[name]
}

// RRset returns the RRset at (name, rrtype), creating an empty one if
// absent.
func (z *Zone) RRset(name string, rrtype uint16) *RRset {
	byType, ok := z.rrsets[name]
	if !ok {
		byType = make(map[uint16]*RRset)
		z.rrsets[name] = byType
		z.owners = append(z.owners, name)
	}
	rrset, ok := byType[rrtype]
	if !ok {
		rrset = &RRset{Name: name, Type: rrtype}
		byType[rrtype] = rrset
	}
	return rrset
}

// AddRR inserts rr into the zone under its owner and type.
func (z *Zone) AddRR(rr dns.RR) {
	name := rr.Header().Name
	rrtype := rr.Header().Rrtype
	if rrtype == dns.TypeRRSIG {
		covered := rr.(*dns.RRSIG).TypeCovered
		rrset := z.RRset(name, covered)
		rrset.RRSIGs = append(rrset.RRSIGs, rr)
		return
	}
	rrset := z.RRset(name, rrtype)
	rrset.RRs = append(rrset.RRs, rr)
}

// SOA returns the zone apex's SOA record, or nil if absent.
func (z *Zone) SOA() *dns.SOA {
	byType, ok := z.rrsets[z.Origin]
	if !ok {
		return nil
	}
	rrset, ok := byType[dns.TypeSOA]
	if !ok || len(rrset.RRs) == 0 {
		return nil
	}
	soa, _ := rrset.RRs[0].(*dns.SOA)
	return soa
}

// ReadFile reads a master-file zone from path, following $INCLUDE to a
// depth of MaxIncludeDepth, spec.md §6.4.
func ReadFile(path, origin string) (*Zone, error) {
	text, err := readWithIncludes(path, 0)
	if err != nil {
		return nil, fmt.Errorf("zonefile.ReadFile: %s: %w", path, err)
	}
	return parse(text, origin, path)
}

// readWithIncludes returns path's contents with every $INCLUDE directive
// textually expanded in place, recursively, up to MaxIncludeDepth. This
// wraps dns.ZoneParser's own (unbounded) $INCLUDE handling so the depth
// bound spec.md §6.4 asks for is actually enforced (see DESIGN.md).
func readWithIncludes(path string, depth int) (string, error) {
	if depth > MaxIncludeDepth {
		return "", fmt.Errorf("$INCLUDE nesting exceeds depth %d at %s", MaxIncludeDepth, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "$INCLUDE") {
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			return "", fmt.Errorf("malformed $INCLUDE directive: %q", line)
		}
		incPath := fields[1]
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(filepath.Dir(path), incPath)
		}
		sub, err := readWithIncludes(incPath, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(sub)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func parse(text, origin, source string) (*Zone, error) {
	zp := dns.NewZoneParser(strings.NewReader(text), dns.Fqdn(origin), source)
	zp.SetIncludeAllowed(false) // we already expanded $INCLUDE ourselves

	z := NewZone(origin)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if rr.Header().Rrtype == dns.TypeSOA {
			z.TTL = rr.Header().Ttl
		}
		z.AddRR(rr)
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zonefile.parse: %s: %w", source, err)
	}
	if z.SOA() == nil {
		return nil, fmt.Errorf("zonefile.parse: %s: no SOA record found for zone %s", source, origin)
	}
	return z, nil
}

// WriteFile renders the zone to path in canonical RRset order: the apex
// SOA first, then every other owner in SortedOwners order, then within an
// owner, RRsets in ascending rrtype order with covering RRSIGs
// immediately following, grounded on tdns/zone_utils.go's WriteFile.
func WriteFile(z *Zone, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("zonefile.WriteFile: %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "$ORIGIN %s\n", z.Origin)
	if z.TTL > 0 {
		fmt.Fprintf(w, "$TTL %d\n", z.TTL)
	}

	if err := writeOwner(w, z, z.Origin); err != nil {
		return err
	}
	for _, name := range z.SortedOwners() {
		if name == z.Origin {
			continue
		}
		if err := writeOwner(w, z, name); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeOwner(w *bufio.Writer, z *Zone, name string) error {
	byType, ok := z.rrsets[name]
	if !ok {
		return nil
	}
	types := make([]uint16, 0, len(byType))
	for t := range byType {
		if name == z.Origin && t == dns.TypeSOA {
			continue // written explicitly first, below
		}
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	if name == z.Origin {
		if soaSet, ok := byType[dns.TypeSOA]; ok {
			writeRRset(w, soaSet)
		}
	}
	for _, t := range types {
		writeRRset(w, byType[t])
	}
	return nil
}

func writeRRset(w *bufio.Writer, rrset *RRset) {
	for _, rr := range rrset.RRs {
		fmt.Fprintln(w, rr.String())
	}
	for _, sig := range rrset.RRSIGs {
		fmt.Fprintln(w, sig.String())
	}
}
