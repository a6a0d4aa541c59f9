package signer

import (
	"crypto"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/miekg/dns"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
	"github.com/opendnssec/opendnssec-sub014/internal/zonefile"
)

// signJob is one RRset-sized signing subtask pushed onto the fifoqueue,
// spec.md §4.7 step 3 "for each changed RRset, allocate a sign job".
type signJob struct {
	Zone    string
	Name    string
	Type    uint16
	RRs     []dns.RR
	RRset   *zonefile.RRset
	Signers []signingKey
	Timing  keymodel.SignatureTiming
}

type signingKey struct {
	Handle keystore.Handle
	DNSKEY *dns.DNSKEY
	Pub    crypto.PublicKey
}

// signCallback pushes one subtask per RRset that needs (re)signing onto
// the fifoqueue, then blocks in WaitFor until every subtask has been
// processed, spec.md §4.4/§4.7/§5.
func (d *Driver) signCallback(owner string, _ interface{}, ctx task.Context) task.Hint {
	view, ok := d.getView(owner)
	if !ok {
		log.Printf("signer: zone %q: sign: no in-memory view (read never ran)", owner)
		return task.SUCCESS
	}

	_, tx, err := beginTx(d.Store)
	if err != nil {
		return translateHint(err)
	}
	defer tx.Rollback()

	zrec, err := tx.GetZone(owner)
	if err != nil {
		return translateHint(err)
	}
	prec, err := tx.GetPolicy(zrec.Entity.PolicyID)
	if err != nil {
		return translateHint(err)
	}
	zone, policy := zrec.Entity, prec.Entity

	zskSigners, kskSigners, err := d.activeSigners(zone)
	if err != nil {
		log.Printf("signer: zone %q: resolving active keys: %v", owner, err)
		return task.DEFER
	}
	tx.Rollback() // read-only for this task; release the snapshot before blocking on the FIFO

	publishDNSKEYs(view, zskSigners, kskSigners)

	n := 0
	for _, name := range view.Owners() {
		for rrtype, rrset := range view.RRsets(name) {
			if len(rrset.RRs) == 0 {
				continue
			}
			if !needsResign(rrset, ctx.Now, policy.Signature.Refresh) {
				continue
			}
			signers := zskSigners
			if rrtype == dns.TypeDNSKEY {
				signers = kskSigners
			}
			if len(signers) == 0 {
				continue
			}
			job := &signJob{Zone: owner, Name: name, Type: rrtype, RRs: rrset.RRs, RRset: rrset, Signers: signers, Timing: policy.Signature}
			tries := 0
			if d.Fifo.Push(job, owner, &tries) != fifoqueue.Pushed {
				log.Printf("signer: zone %q: fifo push for %s/%s returned Unchanged after retries", owner, name, dns.TypeToString[rrtype])
				continue
			}
			n++
		}
	}

	if n == 0 {
		d.pushNext(owner, TaskWrite, clock.Immediately)
		return task.SUCCESS
	}

	failed := d.Fifo.WaitFor(owner, n)
	if failed > 0 {
		log.Printf("signer: zone %q: %d/%d sign subtasks failed, deferring", owner, failed, n)
		return task.DEFER
	}

	d.pushNext(owner, TaskWrite, clock.Immediately)
	return task.SUCCESS
}

// activeSigners resolves the zone's currently-published keys into signing
// handles, split by role: ZSK/CSK keys sign ordinary RRsets, KSK/CSK keys
// sign the DNSKEY RRset, spec.md §4.6/§4.7 (mirrors tdns/sign.go's
// dak.KSKs/dak.ZSKs split).
func (d *Driver) activeSigners(zone *keymodel.Zone) (zskSigners, kskSigners []signingKey, err error) {
	for _, k := range zone.Keys {
		if k.DNSKEY.State != keymodel.Rumoured && k.DNSKEY.State != keymodel.Omnipresent {
			continue
		}
		handle, ferr := d.Keystore.FindByLocator(k.Locator)
		if ferr != nil {
			continue // key vanished from the keystore between enforce and sign; skip it this pass
		}
		flags := uint16(256)
		if k.Role == keymodel.RoleKSK || k.Role == keymodel.RoleCSK {
			flags = 257
		}
		rr, berr := keystore.BuildDNSKEY(zone.Name, handle, k.Algorithm, flags, uint32(k.DNSKEY.TTL))
		if berr != nil {
			continue
		}
		var pub crypto.PublicKey
		if pker, ok := handle.(keystore.PublicKeyer); ok {
			pub = pker.PublicKey()
		}
		sk := signingKey{Handle: handle, DNSKEY: rr, Pub: pub}
		if k.Role == keymodel.RoleZSK || k.Role == keymodel.RoleCSK {
			zskSigners = append(zskSigners, sk)
		}
		if k.Role == keymodel.RoleKSK || k.Role == keymodel.RoleCSK {
			kskSigners = append(kskSigners, sk)
		}
	}
	return zskSigners, kskSigners, nil
}

// publishDNSKEYs writes the zone apex's DNSKEY RRset from every currently
// active signer (ZSK and KSK roles both contribute, a CSK's single key
// appearing in both), so the signed output actually carries the keys the
// enforcer decided should be published, not just whatever happened to
// already be in the input adapter's file.
func publishDNSKEYs(view *zonefile.Zone, zskSigners, kskSigners []signingKey) {
	seen := make(map[*dns.DNSKEY]bool)
	var rrs []dns.RR
	for _, group := range [][]signingKey{zskSigners, kskSigners} {
		for _, sk := range group {
			if seen[sk.DNSKEY] {
				continue
			}
			seen[sk.DNSKEY] = true
			rrs = append(rrs, sk.DNSKEY)
		}
	}
	if len(rrs) == 0 {
		return
	}
	view.RRset(view.Origin, dns.TypeDNSKEY).RRs = rrs
}

// needsResign reports whether rrset has no RRSIG yet or its existing
// RRSIGs expire within refresh seconds, grounded on tdns/sign.go's
// NeedsResigning (there: "less than 3 resigning intervals left").
func needsResign(rrset *zonefile.RRset, now, refresh int64) bool {
	if len(rrset.RRSIGs) == 0 {
		return true
	}
	if refresh <= 0 {
		refresh = 3600
	}
	for _, sig := range rrset.RRSIGs {
		rrsig, ok := sig.(*dns.RRSIG)
		if !ok {
			continue
		}
		if int64(rrsig.Expiration)-now < refresh {
			return true
		}
	}
	return false
}

// SignSubtask signs one RRset pulled from the fifoqueue, producing one
// fresh RRSIG per active signer with the policy's inception offset and
// validity, spec.md §4.1/§4.7, grounded directly on tdns/sign.go's
// SignRRset (rrsig.Sign(key.CS, rrset.RRs)). It is registered with the
// worker pool as its SubtaskHandler (the handler argument of
// internal/workerpool.New, in cmd/enforcerd).
func (d *Driver) SignSubtask(item interface{}) bool {
	job, ok := item.(*signJob)
	if !ok {
		log.Printf("signer: SignSubtask: unexpected item type %T", item)
		return false
	}

	validity := time.Duration(job.Timing.ValidityDefault) * time.Second
	if job.Type == dns.TypeDNSKEY {
		validity = time.Duration(job.Timing.ValidityKeyset) * time.Second
	}
	if validity <= 0 {
		validity = 5 * time.Minute // no policy-configured validity; tdns/sign.go's SignMsg fallback
	}
	inception, expiration := sigLifetime(time.Now(), validity, job.Timing)

	var fresh []dns.RR
	for _, signer := range job.Signers {
		rrsig := &dns.RRSIG{
			Hdr:         dns.RR_Header{Name: job.Name, Rrtype: dns.TypeRRSIG, Class: dns.ClassINET, Ttl: job.RRs[0].Header().Ttl},
			TypeCovered: job.Type,
			Algorithm:   signer.DNSKEY.Algorithm,
			Inception:   inception,
			Expiration:  expiration,
			KeyTag:      signer.DNSKEY.KeyTag(),
			SignerName:  dns.Fqdn(job.Zone),
		}
		cs := &keystoreSigner{ks: d.Keystore, handle: signer.Handle, pub: signer.Pub}
		if err := rrsig.Sign(cs, job.RRs); err != nil {
			log.Printf("signer: SignSubtask: zone %q %s/%s: %v", job.Zone, job.Name, dns.TypeToString[job.Type], err)
			return false
		}
		fresh = append(fresh, rrsig)
	}
	job.RRset.RRSIGs = fresh
	return true
}

// sigLifetime mirrors tdns/sign.go's sigLifetime: inception is now minus
// the policy's clock-skew allowance minus a random jitter, expiration is
// now plus validity plus the same jitter, so a verifier's clock skew in
// either direction stays covered. timing.InceptionOffset is policy.
// Signature's configured backdating (falling back to 60s, tdns/sign.go's
// hardcoded allowance, when unset); timing.Jitter bounds the random
// component (tdns/sign.go hardcodes 61, i.e. rand.Intn(61), as its jitter
// ceiling).
func sigLifetime(t time.Time, validity time.Duration, timing keymodel.SignatureTiming) (inception, expiration uint32) {
	jitterMax := int(timing.Jitter)
	if jitterMax <= 0 {
		jitterMax = 60
	}
	sigJitter := time.Duration(rand.Intn(jitterMax+1)) * time.Second
	offset := time.Duration(timing.InceptionOffset) * time.Second
	if offset <= 0 {
		offset = 60 * time.Second
	}
	incep := t.Add(-sigJitter).Add(-offset)
	expir := t.Add(validity).Add(sigJitter)
	return uint32(incep.Unix()), uint32(expir.Unix())
}

// keystoreSigner adapts the narrow Keystore.Sign contract (spec.md §6.1)
// to crypto.Signer, so dns.RRSIG.Sign can drive it exactly as it drives
// any in-process private key (tdns/sign.go's key.CS), without widening
// the Keystore interface or letting key material leave it.
type keystoreSigner struct {
	ks     keystore.Keystore
	handle keystore.Handle
	pub    crypto.PublicKey
}

func (s *keystoreSigner) Public() crypto.PublicKey { return s.pub }

func (s *keystoreSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.ks.Sign(s.handle, digest, opts)
}
