package signer

import (
	"log"
	"time"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/task"
	"github.com/opendnssec/opendnssec-sub014/internal/zonefile"
)

// readCallback reads the zone into the in-memory view via its input
// adapter, spec.md §4.7 step 2. The input_adapter is always read as a
// zone file path; there is no DNS-connection adapter. A read failure of
// any kind returns DEFER, so the read is retried with backoff; an empty
// input_adapter ends the task with SUCCESS.
func (d *Driver) readCallback(owner string, _ interface{}, ctx task.Context) task.Hint {
	_, tx, err := beginTx(d.Store)
	if err != nil {
		return translateHint(err)
	}
	defer tx.Rollback()

	zrec, err := tx.GetZone(owner)
	if err != nil {
		return translateHint(err)
	}
	zone := zrec.Entity

	if zone.InputAdapter == "" {
		log.Printf("signer: zone %q: no input_adapter configured", owner)
		return task.SUCCESS
	}

	view, err := zonefile.ReadFile(zone.InputAdapter, zone.Name)
	if err != nil {
		log.Printf("signer: zone %q: read %s: %v", owner, zone.InputAdapter, err)
		return task.DEFER
	}

	if soa := view.SOA(); soa != nil {
		zone.InboundSerial = soa.Serial
	}
	d.setView(owner, view)

	if err := tx.UpdateZone(zrec); err != nil {
		return translateHint(err)
	}
	if err := tx.Commit(); err != nil {
		return translateHint(err)
	}

	d.pushNext(owner, TaskSign, clock.Immediately)
	return task.SUCCESS
}

// writeCallback applies the zone's SOA serial strategy, generates the
// denial-of-existence chain, writes the signed zone via its output
// adapter, and schedules the next periodic signconf cycle at the policy's
// resign interval, spec.md §4.7 step 4.
func (d *Driver) writeCallback(owner string, _ interface{}, ctx task.Context) task.Hint {
	view, ok := d.getView(owner)
	if !ok {
		log.Printf("signer: zone %q: write: no in-memory view (read never ran)", owner)
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

	soa := view.SOA()
	if soa == nil {
		log.Printf("signer: zone %q: write: no SOA in view", owner)
		return task.DEFER
	}
	newSerial := nextSerial(policy.Zone.SerialStrategy, ctx.Now, soa.Serial, zone.OutboundSerial, zone.InboundSerial)
	soa.Serial = newSerial

	switch policy.Denial {
	case keymodel.DenialNSEC3:
		if err := zonefile.BuildNSEC3Chain(view, policy.NSEC3.Algorithm, policy.NSEC3.Iterations, policy.NSEC3.Salt, uint32(policy.Signature.ValidityDenial)); err != nil {
			log.Printf("signer: zone %q: NSEC3 chain: %v", owner, err)
			return task.DEFER
		}
	default:
		if err := zonefile.BuildNSECChain(view, uint32(policy.Signature.ValidityDenial)); err != nil {
			log.Printf("signer: zone %q: NSEC chain: %v", owner, err)
			return task.DEFER
		}
	}

	if zone.OutputAdapter == "" {
		log.Printf("signer: zone %q: no output_adapter configured, skipping write", owner)
	} else if err := zonefile.WriteFile(view, zone.OutputAdapter); err != nil {
		log.Printf("signer: zone %q: write %s: %v", owner, zone.OutputAdapter, err)
		return task.DEFER
	}

	zone.OutboundSerial = newSerial
	if err := tx.UpdateZone(zrec); err != nil {
		return translateHint(err)
	}
	if err := tx.Commit(); err != nil {
		return translateHint(err)
	}

	resign := policy.Signature.Resign
	if resign <= 0 {
		resign = task.MinBackoff
	}
	if err := d.pushSignconf(owner, ctx.Now+resign); err != nil {
		log.Printf("signer: zone %q: scheduling next signconf cycle: %v", owner, err)
	}
	return task.SUCCESS
}

// nextSerial implements spec.md §4.7's SOA serial policies.
func nextSerial(strategy keymodel.SOASerialStrategy, now int64, current, priorOutbound, inbound uint32) uint32 {
	switch strategy {
	case keymodel.SerialUnixTime:
		u := uint32(now)
		if u <= priorOutbound {
			u = priorOutbound + 1
		}
		return u
	case keymodel.SerialDateCounter:
		date := uint32(dateStamp(now)) * 100
		if date <= priorOutbound {
			return priorOutbound + 1
		}
		return date
	case keymodel.SerialKeep:
		return inbound
	default: // SerialCounter
		next := current + 1
		if priorOutbound+1 > next {
			next = priorOutbound + 1
		}
		if inbound > next {
			next = inbound
		}
		return next
	}
}

// dateStamp renders now as YYYYMMDD, the classic BIND-style SOA serial
// date component spec.md §4.7's "date" strategy describes.
func dateStamp(now int64) int64 {
	if now == 0 {
		now = clock.Default.Now().Unix()
	}
	t := time.Unix(now, 0).UTC()
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}
