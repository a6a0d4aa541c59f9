package enforcer

import (
	"bytes"
	"fmt"
	"log"
	"os/exec"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
)

// DSHookRunner invokes the external DS-submit/retract command, spec.md
// §6.5: "invoked with the DNSKEY RR on stdin and the zone name as
// argument." Non-zero exit must translate to errs.IO so the caller retries
// on next pass.
type DSHookRunner interface {
	Run(path, zone string, dnskey []byte) error
}

// ShellDSHook runs the configured hook as an external process, grounded on
// tdns/start_utils.go's exec.Command/CombinedOutput pattern.
type ShellDSHook struct{}

func (ShellDSHook) Run(path, zone string, dnskey []byte) error {
	if path == "" {
		return nil
	}
	cmd := exec.Command(path, zone)
	cmd.Stdin = bytes.NewReader(dnskey)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Printf("enforcer: ds hook %q %s failed: %v: %s", path, zone, err, out)
		return errs.New(errs.IO, "dshook.Run", fmt.Errorf("%s %s: %w", path, zone, err))
	}
	return nil
}
