package signer

import (
	"encoding/json"
	"log"
	"os"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
)

// signconfDoc is the writer-facing document spec.md §4.6 describes as
// "keys + policy -> a writer-facing document": everything a downstream
// signer needs to know about a zone's current key set and timing policy
// without touching the database directly.
type signconfDoc struct {
	Zone   string            `json:"zone"`
	Denial string            `json:"denial_mode"`
	NSEC3  *keymodel.NSEC3Params `json:"nsec3,omitempty"`
	Keys   []signconfKey     `json:"keys"`
}

type signconfKey struct {
	Locator   string `json:"locator"`
	Role      string `json:"role"`
	Algorithm uint8  `json:"algorithm"`
	Keytag    uint16 `json:"keytag"`
	Active    bool   `json:"active"` // DNSKEY state is Rumoured or Omnipresent
}

func (d *Driver) signconfCallback(owner string, _ interface{}, ctx task.Context) task.Hint {
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

	doc := signconfDoc{Zone: owner, Keys: make([]signconfKey, 0, len(zone.Keys))}
	if policy.Denial == keymodel.DenialNSEC3 {
		doc.Denial = "NSEC3"
		doc.NSEC3 = &policy.NSEC3
	} else {
		doc.Denial = "NSEC"
	}
	for _, k := range zone.Keys {
		doc.Keys = append(doc.Keys, signconfKey{
			Locator:   k.Locator,
			Role:      k.Role.String(),
			Algorithm: k.Algorithm,
			Keytag:    k.Keytag,
			Active:    k.DNSKEY.State == keymodel.Rumoured || k.DNSKEY.State == keymodel.Omnipresent,
		})
	}

	if zone.SignconfPath != "" {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			log.Printf("signer: zone %q: marshal signconf: %v", owner, err)
			return task.DEFER
		}
		if err := os.WriteFile(zone.SignconfPath, data, 0o644); err != nil {
			log.Printf("signer: zone %q: write signconf %s: %v", owner, zone.SignconfPath, err)
			return task.DEFER
		}
	}

	zone.SignconfNeedsWriting = false
	if err := tx.UpdateZone(zrec); err != nil {
		return translateHint(err)
	}
	if err := tx.Commit(); err != nil {
		return translateHint(err)
	}

	d.pushNext(owner, TaskRead, clock.Immediately)
	return task.SUCCESS
}
