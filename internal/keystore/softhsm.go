package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/miekg/dns"
)

// SoftHandle is the Handle returned by SoftHSM; it also carries the signer
// so Sign doesn't need a second map lookup.
type SoftHandle struct {
	locator string
	signer  crypto.Signer
	pub     crypto.PublicKey
	alg     uint8
}

func (h *SoftHandle) Locator() string { return h.locator }

// SoftHSM is a software-backed Keystore implementation: it generates real
// key material in memory, keyed by a locator string, exercising the same
// contract a PKCS#11 HSM would. Grounded on tdns/keystore.go's pattern of
// keeping decoded key material in a locator/zonename-keyed cache
// (kdb.DnssecCache) — here the cache *is* the backing store, since there
// is no hardware behind it.
//
// This is a reference/test backend, not a security boundary: private key
// material lives in process memory.
type SoftHSM struct {
	mu   sync.RWMutex
	keys map[string]*SoftHandle
}

func NewSoftHSM() *SoftHSM {
	return &SoftHSM{keys: make(map[string]*SoftHandle)}
}

func (s *SoftHSM) Initialize() error { return nil }
func (s *SoftHSM) Finalize() error   { return nil }

// Generate creates a key of the given DNSSEC algorithm number. Supported:
// dns.ED25519, dns.ECDSAP256SHA256, dns.ECDSAP384SHA384. bits is ignored
// for curve algorithms and only meaningful for RSA, which this reference
// backend does not implement (operators who need RSA wire a real HSM).
func (s *SoftHSM) Generate(repository string, algorithm uint8, bits int) (string, error) {
	var signer crypto.Signer
	var pub crypto.PublicKey
	var err error

	switch algorithm {
	case dns.ED25519:
		pub, signer, err = ed25519.GenerateKey(rand.Reader)
	case dns.ECDSAP256SHA256:
		var sk *ecdsa.PrivateKey
		sk, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		signer, pub = sk, &sk.PublicKey
	case dns.ECDSAP384SHA384:
		var sk *ecdsa.PrivateKey
		sk, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		signer, pub = sk, &sk.PublicKey
	default:
		return "", &Error{Kind: Backend, Op: "Generate", Err: fmt.Errorf("unsupported algorithm %d", algorithm)}
	}
	if err != nil {
		return "", &Error{Kind: Backend, Op: "Generate", Err: err}
	}

	locator := fmt.Sprintf("%s-%s", repository, uuid.NewString())
	s.mu.Lock()
	s.keys[locator] = &SoftHandle{locator: locator, signer: signer, pub: pub, alg: algorithm}
	s.mu.Unlock()

	log.Printf("SoftHSM.Generate: repository=%q algorithm=%d -> locator=%s", repository, algorithm, locator)
	return locator, nil
}

func (s *SoftHSM) FindByLocator(locator string) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.keys[locator]
	if !ok {
		return nil, &Error{Kind: NotFound, Op: "FindByLocator", Err: fmt.Errorf("no such key %q", locator)}
	}
	return h, nil
}

func (s *SoftHSM) Sign(handle Handle, data []byte, opts crypto.SignerOpts) ([]byte, error) {
	h, ok := handle.(*SoftHandle)
	if !ok {
		return nil, &Error{Kind: Backend, Op: "Sign", Err: fmt.Errorf("handle not produced by SoftHSM")}
	}
	sig, err := h.signer.Sign(rand.Reader, data, opts)
	if err != nil {
		return nil, &Error{Kind: Backend, Op: "Sign", Err: err}
	}
	return sig, nil
}

func (s *SoftHSM) Remove(handle Handle) error {
	h, ok := handle.(*SoftHandle)
	if !ok {
		return nil
	}
	s.mu.Lock()
	delete(s.keys, h.locator)
	s.mu.Unlock()
	return nil
}

func (s *SoftHSM) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, &Error{Kind: IO, Op: "RandomBytes", Err: err}
	}
	return buf, nil
}

// PublicKey exposes the public key behind a SoftHandle so callers (the
// signer driver, building DNSKEY RRs) can construct the RR without a
// second interface method on Keystore.
func (h *SoftHandle) PublicKey() crypto.PublicKey { return h.pub }

// Signer exposes the crypto.Signer directly for the (common, in-process)
// case where the caller already holds a *SoftHandle and wants to sign
// without going through the Keystore.Sign indirection. Nothing in this
// repository calls it; internal/signer signs through Keystore.Sign.
func (h *SoftHandle) Signer() crypto.Signer { return h.signer }
