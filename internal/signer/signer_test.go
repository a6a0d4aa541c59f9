package signer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
	"github.com/opendnssec/opendnssec-sub014/internal/workerpool"
	"github.com/opendnssec/opendnssec-sub014/internal/zonefile"
)

const testZoneText = `$ORIGIN example.com.
$TTL 3600
example.com.  3600  IN  SOA  ns1.example.com. hostmaster.example.com. 1 3600 900 1209600 3600
example.com.  3600  IN  NS   ns1.example.com.
ns1.example.com. 3600 IN A   192.0.2.1
www.example.com. 3600 IN A  192.0.2.2
`

// runSchedule drains every due task in sched, as runDueTask does in the
// enforcer package's tests, standing in for the worker pool's scheduler
// loop so the signconf->read->sign->write chain runs synchronously.
func runSchedule(t *testing.T, sched *schedule.Schedule, now int64, max int) {
	t.Helper()
	for i := 0; i < max; i++ {
		tsk, ok := sched.PopDue(time.Now().Add(10 * time.Millisecond))
		if !ok {
			return
		}
		_, destroy := tsk.Perform(now)
		if destroy {
			tsk.Destroy()
		}
	}
}

func newTestDriver(t *testing.T) (*Driver, *storage.SqliteStore, *workerpool.Pool) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "signer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ks := keystore.NewSoftHSM()
	require.NoError(t, ks.Initialize())
	t.Cleanup(func() { ks.Finalize() })

	sched := schedule.New()
	fifo := fifoqueue.New(fifoqueue.DefaultCapacity)
	d := New(store, ks, sched, fifo, nil)

	pool := workerpool.New(2, sched, fifo, d.SignSubtask)
	pool.Start()
	t.Cleanup(pool.Stop)

	return d, store, pool
}

// seedSignedZone wires one ZSK key (already Omnipresent, so signCallback
// treats it as active) to a zone backed by a real master file on disk.
func seedSignedZone(t *testing.T, store *storage.SqliteStore, ks keystore.Keystore, name string) (*keymodel.Zone, string, string) {
	t.Helper()

	locator, err := ks.Generate("soft", dns.ED25519, 0)
	require.NoError(t, err)
	handle, err := ks.FindByLocator(locator)
	require.NoError(t, err)
	rr, err := keystore.BuildDNSKEY(name, handle, dns.ED25519, 256, 3600)
	require.NoError(t, err)

	key := &keymodel.Key{
		Locator:     locator,
		Algorithm:   dns.ED25519,
		Role:        keymodel.RoleZSK,
		Keytag:      rr.KeyTag(),
		DNSKEY:      keymodel.SubState{State: keymodel.Omnipresent, TTL: 3600},
		RRSIGDNSKEY: keymodel.SubState{State: keymodel.Omnipresent, TTL: 3600},
		RRSIG:       keymodel.SubState{State: keymodel.Omnipresent, TTL: 3600},
		DS:          keymodel.SubState{State: keymodel.NA},
	}

	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.zone")
	outPath := filepath.Join(dir, "out.zone")
	signconfPath := filepath.Join(dir, "signconf.json")
	require.NoError(t, os.WriteFile(inPath, []byte(testZoneText), 0o644))

	policy := &keymodel.Policy{
		ID: "default",
		Signature: keymodel.SignatureTiming{
			Resign:         86400,
			Refresh:        3600,
			ValidityDenial: 3600,
		},
		Denial: keymodel.DenialNSEC,
		Zone:   keymodel.ZoneTiming{SerialStrategy: keymodel.SerialCounter},
	}
	zone := &keymodel.Zone{
		Name:          name,
		PolicyID:      "default",
		InputAdapter:  inPath,
		OutputAdapter: outPath,
		SignconfPath:  signconfPath,
		Keys:          []*keymodel.Key{key},
	}

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.InsertPolicy(policy)
	require.NoError(t, err)
	_, err = tx.InsertZone(zone)
	require.NoError(t, err)
	_, err = tx.InsertKey(zone.Name, key)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return zone, inPath, outPath
}

// TestDriver_FullPipeline_SignsZoneAndWritesOutput drives one complete
// signconf -> read -> sign -> write pass, spec.md §4.7, and checks the
// output zone carries RRSIGs and the signconf document was written.
func TestDriver_FullPipeline_SignsZoneAndWritesOutput(t *testing.T) {
	d, store, _ := newTestDriver(t)
	zone, _, outPath := seedSignedZone(t, store, d.Keystore, "example.com.")

	require.NoError(t, d.RegisterZone(zone.Name))

	// signconf -> read -> sign (blocks on fifo, drained by the pool) -> write.
	runSchedule(t, d.Schedule, 0, 8)

	require.Eventually(t, func() bool {
		_, err := os.Stat(outPath)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RRSIG")
	assert.Contains(t, string(data), "SOA")
	assert.Contains(t, string(data), "DNSKEY")

	_, err = os.Stat(zone.SignconfPath)
	require.NoError(t, err)
	conf, err := os.ReadFile(zone.SignconfPath)
	require.NoError(t, err)
	assert.Contains(t, string(conf), "\"zone\"")

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	zrec, err := tx.GetZone(zone.Name)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), zrec.Entity.OutboundSerial, "counter strategy bumps serial 1 -> 2")
}

func TestNextSerial_Strategies(t *testing.T) {
	assert.EqualValues(t, 6, nextSerial(keymodel.SerialCounter, 0, 5, 0, 0))
	assert.EqualValues(t, 6, nextSerial(keymodel.SerialCounter, 0, 5, 5, 0), "priorOutbound must not be skipped backwards")
	assert.EqualValues(t, 9, nextSerial(keymodel.SerialCounter, 0, 5, 0, 9), "inbound ahead of counter wins")
	assert.EqualValues(t, 42, nextSerial(keymodel.SerialKeep, 0, 5, 0, 42))

	u := nextSerial(keymodel.SerialUnixTime, 1_700_000_000, 0, 0, 0)
	assert.EqualValues(t, 1_700_000_000, u)
	assert.EqualValues(t, 1_700_000_001, nextSerial(keymodel.SerialUnixTime, 1_700_000_000, 0, 1_700_000_000, 0))
}

func TestNeedsResign(t *testing.T) {
	rrset := &zonefile.RRset{Name: "www.example.com.", Type: dns.TypeA}
	assert.True(t, needsResign(rrset, 0, 3600), "no RRSIGs yet")

	rrset.RRSIGs = []dns.RR{&dns.RRSIG{Expiration: 10000}}
	assert.False(t, needsResign(rrset, 0, 3600), "expiration far beyond refresh window")
	assert.True(t, needsResign(rrset, 9000, 3600), "within refresh window of expiration")
}
