// Package logging sets up the process-wide standard logger, grounded on
// tdns/logging.go's SetupLogging/SetupCliLogging: file/line-prefixed
// log.Printf everywhere, rotated through lumberjack when a log file is
// configured, with Debug-gated extra output sourced from
// config.Globals.Debug rather than a separate leveled logger package.
package logging

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opendnssec/opendnssec-sub014/internal/config"
)

// Setup points the standard logger at logfile with rotation, or leaves it
// on stderr if logfile is empty (the daemon always wants one; the CLI
// does not, see SetupCLI).
func Setup(logfile string) {
	log.SetFlags(log.Lshortfile | log.Ltime)
	if logfile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     14,
		})
	}
}

// SetupCLI configures logging for CLI commands (cmd/enforcer-cli):
// plain output by default, file/line info once -v/-d is passed, mirroring
// tdns.SetupCliLogging's verbose/debug gating.
func SetupCLI() {
	if config.Globals.Verbose || config.Globals.Debug {
		log.SetFlags(log.Lshortfile | log.Ltime)
	} else {
		log.SetFlags(0)
	}
}

// Debugf logs only when config.Globals.Debug is set, the same gate every
// "if Globals.Debug { log.Printf(...) }" call site in tdns/music uses
// inline; this just collects the check in one place for new code.
func Debugf(format string, args ...interface{}) {
	if config.Globals.Debug {
		log.Printf(format, args...)
	}
}

// Verbosef logs only when config.Globals.Verbose (or Debug) is set.
func Verbosef(format string, args ...interface{}) {
	if config.Globals.Verbose || config.Globals.Debug {
		log.Printf(format, args...)
	}
}
