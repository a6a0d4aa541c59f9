package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/miekg/dns"
)

// PublicKeyer is implemented by Handle backends (e.g. *SoftHandle) that can
// expose the raw public key material, so DNSKEY RRs can be built without
// widening the narrow Keystore contract of spec.md §6.1.
type PublicKeyer interface {
	PublicKey() crypto.PublicKey
}

// PublicKeyString renders pub in the wire form dns.DNSKEY.PublicKey
// expects: the raw point/key bytes, base64-encoded, per RFC 8080 (ED25519)
// and RFC 6605 (ECDSA, uncompressed X||Y with no leading tag).
func PublicKeyString(pub crypto.PublicKey) (string, error) {
	switch p := pub.(type) {
	case ed25519.PublicKey:
		return base64.StdEncoding.EncodeToString(p), nil
	case *ecdsa.PublicKey:
		size := (p.Curve.Params().BitSize + 7) / 8
		buf := make([]byte, 2*size)
		xb := p.X.Bytes()
		yb := p.Y.Bytes()
		copy(buf[size-len(xb):size], xb)
		copy(buf[2*size-len(yb):], yb)
		return base64.StdEncoding.EncodeToString(buf), nil
	default:
		return "", fmt.Errorf("keystore.PublicKeyString: unsupported public key type %T", pub)
	}
}

// BuildDNSKEY constructs the DNSKEY RR for handle, used by both the
// enforcer (to compute a new key's keytag, internal/enforcer/keygen.go)
// and the signer driver (to publish/sign with the RR, internal/signer).
// flags is 257 for a key-signing key (SEP bit set) or 256 otherwise,
// spec.md §3.5's role distinguishing KSK/ZSK/CSK.
func BuildDNSKEY(owner string, handle Handle, algorithm uint8, flags uint16, ttl uint32) (*dns.DNSKEY, error) {
	pk, ok := handle.(PublicKeyer)
	if !ok {
		return nil, fmt.Errorf("keystore.BuildDNSKEY: handle %T does not expose a public key", handle)
	}
	keystring, err := PublicKeyString(pk.PublicKey())
	if err != nil {
		return nil, err
	}
	rr := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: dns.Fqdn(owner), Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET, Ttl: ttl},
		Flags:     flags,
		Protocol:  3,
		Algorithm: algorithm,
		PublicKey: keystring,
	}
	return rr, nil
}
