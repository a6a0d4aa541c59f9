// Command enforcerd is the DNSSEC key lifecycle daemon of spec.md §1-§5:
// it wires persistence, the keystore, the task schedule and FIFO, the
// worker pool, the enforcer, and the signer driver together and runs
// them until asked to stop. Grounded on tdnsd/main.go's signal-driven
// mainloop (SIGINT/SIGTERM/SIGHUP dispatch via a select loop) adapted to
// this daemon's collaborators instead of tdnsd's zone/validator engines.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opendnssec/opendnssec-sub014/internal/clock"
	"github.com/opendnssec/opendnssec-sub014/internal/commandsocket"
	"github.com/opendnssec/opendnssec-sub014/internal/config"
	"github.com/opendnssec/opendnssec-sub014/internal/enforcer"
	"github.com/opendnssec/opendnssec-sub014/internal/fifoqueue"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/logging"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/signer"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
	"github.com/opendnssec/opendnssec-sub014/internal/workerpool"
)

var appVersion = "dev"

func main() {
	cfgFile := ""
	if len(os.Args) > 1 {
		cfgFile = os.Args[1]
	}

	conf, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("enforcerd: %v", err)
	}

	logging.Setup(conf.Log.File)
	log.Printf("enforcerd %s starting, config %q", appVersion, conf.Internal.CfgFile)

	store, err := storage.Open(conf.Db.File)
	if err != nil {
		log.Fatalf("enforcerd: opening database %q: %v", conf.Db.File, err)
	}
	defer store.Close()

	ks := keystore.NewSoftHSM()
	if err := ks.Initialize(); err != nil {
		log.Fatalf("enforcerd: initializing keystore: %v", err)
	}
	defer ks.Finalize()

	sched := schedule.New()
	fifo := fifoqueue.New(conf.Scheduler.FifoCapacity)

	enf := enforcer.New(store, ks, sched, nil, clock.Default)
	enf.DSSubmitCmd = conf.Enforcer.DSSubmitCmd
	enf.DSRetractCmd = conf.Enforcer.DSRetractCmd
	keymodel.PublishSafety = conf.Enforcer.PublishSafety
	keymodel.RetireSafety = conf.Enforcer.RetireSafety

	signerDriver := signer.New(store, ks, sched, fifo, clock.Default)
	enf.SignconfHook = signerDriver.TriggerResign

	pool := workerpool.New(conf.Scheduler.WorkerCount, sched, fifo, signerDriver.SignSubtask)
	pool.Start()
	defer pool.Stop()

	if err := registerZones(store, enf, signerDriver); err != nil {
		log.Fatalf("enforcerd: registering zones: %v", err)
	}

	cmdSrv := &commandsocket.Server{
		Store:    store,
		Enforcer: enf,
		Schedule: sched,
		Keystore: ks,
		Signer:   signerDriver,
		Path:     conf.CommandSocket.Path,
	}
	done := make(chan struct{})
	if err := cmdSrv.ListenAndServe(done); err != nil {
		log.Fatalf("enforcerd: command socket: %v", err)
	}

	mainloop(done)
}

// registerZones schedules every persisted zone's enforce and signconf
// tasks at startup, the cold-start path of spec.md §8 Scenario A.
func registerZones(store storage.Store, enf *enforcer.Enforcer, sg *signer.Driver) error {
	tx, err := store.Begin(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback()

	zones, err := tx.ListZones()
	if err != nil {
		return err
	}
	for _, z := range zones {
		if err := enf.RegisterZone(z.Entity.Name); err != nil {
			return err
		}
		if err := sg.RegisterZone(z.Entity.Name); err != nil {
			return err
		}
	}
	log.Printf("enforcerd: registered %d zone(s)", len(zones))
	return nil
}

// mainloop blocks until SIGINT/SIGTERM, then closes done to unwind the
// command socket and lets main's deferred Stop/Close calls run, mirroring
// tdnsd/main.go's signal dispatcher.
func mainloop(done chan struct{}) {
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	for {
		select {
		case <-exit:
			log.Println("enforcerd: exit signal received, shutting down")
			close(done)
			return
		case <-hup:
			log.Println("enforcerd: SIGHUP received (config reload is via the command socket's \"update conf\")")
		}
	}
}
