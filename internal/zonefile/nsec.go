package zonefile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// BuildNSECChain generates NSEC records for every owner name in z,
// replacing any previously present. Grounded on tdns/nsec.go's
// ComputeNsec: sort owner names with sort.Strings (the same
// canonical-enough approximation used there, not a full RFC 4034 §6.1
// label-reversed comparator), then link each owner to the next with a
// type bitmap of the RR types present at that owner plus NSEC and RRSIG.
func BuildNSECChain(z *Zone, ttl uint32) error {
	names := z.SortedOwners()
	if len(names) == 0 {
		return fmt.Errorf("zonefile.BuildNSECChain: zone %s has no owners", z.Origin)
	}

	for _, name := range names {
		delete(z.rrsets[name], dns.TypeNSEC)
	}

	for i, name := range names {
		next := names[(i+1)%len(names)]
		types := typeBitmap(z.rrsets[name])
		types = append(types, dns.TypeNSEC, dns.TypeRRSIG)
		sort.Slice(types, func(a, b int) bool { return types[a] < types[b] })

		rr := &dns.NSEC{
			Hdr:        dns.RR_Header{Name: name, Rrtype: dns.TypeNSEC, Class: dns.ClassINET, Ttl: ttl},
			NextDomain: next,
			TypeBitMap: types,
		}
		z.RRset(name, dns.TypeNSEC).RRs = []dns.RR{rr}
	}
	return nil
}

// BuildNSEC3Chain generates NSEC3 records hashed with the given algorithm,
// iteration count and salt, spec.md §3.4 "NSEC3 params". Grounded on the
// same owner-link structure as BuildNSECChain, with dns.HashName providing
// the RFC 5155 hash instead of a plain name comparison.
func BuildNSEC3Chain(z *Zone, algorithm uint8, iterations uint16, salt string, ttl uint32) error {
	names := z.SortedOwners()
	if len(names) == 0 {
		return fmt.Errorf("zonefile.BuildNSEC3Chain: zone %s has no owners", z.Origin)
	}

	type hashedOwner struct {
		hash     string
		original string
	}
	hashed := make([]hashedOwner, 0, len(names))
	for _, name := range names {
		h := dns.HashName(name, algorithm, int(iterations), salt)
		hashed = append(hashed, hashedOwner{hash: h, original: name})
	}
	sort.Slice(hashed, func(i, j int) bool { return hashed[i].hash < hashed[j].hash })

	for _, name := range names {
		delete(z.rrsets[name], dns.TypeNSEC3)
	}

	for i, ho := range hashed {
		next := hashed[(i+1)%len(hashed)].hash
		types := typeBitmap(z.rrsets[ho.original])
		types = append(types, dns.TypeRRSIG)
		sort.Slice(types, func(a, b int) bool { return types[a] < types[b] })

		owner := strings.ToLower(ho.hash) + "." + z.Origin
		rr := &dns.NSEC3{
			Hdr:        dns.RR_Header{Name: owner, Rrtype: dns.TypeNSEC3, Class: dns.ClassINET, Ttl: ttl},
			Hash:       dns.SHA1,
			Flags:      0,
			Iterations: iterations,
			SaltLength: uint8(len(salt) / 2),
			Salt:       salt,
			HashLength: uint8(len(next) / 2),
			NextDomain: next,
			TypeBitMap: types,
		}
		z.RRset(owner, dns.TypeNSEC3).RRs = []dns.RR{rr}
	}
	return nil
}

func typeBitmap(byType map[uint16]*RRset) []uint16 {
	out := make([]uint16, 0, len(byType))
	for t, rrset := range byType {
		if len(rrset.RRs) > 0 {
			out = append(out, t)
		}
	}
	return out
}
