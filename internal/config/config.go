// Package config loads the daemon's configuration via viper and validates
// it with go-playground/validator struct tags, mirroring
// music/config.go's Config/LoadMusicConfig and tdns/config.go's
// ValidateBySection (per-section validation so one bad section doesn't
// obscure which part of the file is wrong).
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultCfgFile is the config path used when none is given on the
// command line, mirroring tdns.DefaultCfgFile.
const DefaultCfgFile = "/etc/enforcerd/enforcerd.yaml"

// Config is the daemon's top-level configuration, mirroring music.Config's
// shape (ApiServer/Db/FSMEngine/Internal) with the sections this system
// actually needs.
type Config struct {
	Enforcer      EnforcerConf
	Db            DbConf
	Hsm           HsmConf
	Scheduler     SchedulerConf
	CommandSocket CommandSocketConf
	Log           LogConf

	Internal InternalConf
}

// EnforcerConf carries the extra admissibility margins spec.md §4.6 adds
// on top of ttl+propagation_delay (copied into keymodel.PublishSafety/
// RetireSafety at daemon startup) and the DS hook commands.
type EnforcerConf struct {
	// Interval is validated on load but not read by the daemon: each
	// enforce pass computes its own next wake time.
	Interval      int64 `validate:"required,min=1"`
	PublishSafety int64
	RetireSafety  int64

	// DSSubmitCmd/DSRetractCmd are the external shell hooks of spec.md
	// §6.5, invoked with the DNSKEY RR on stdin and the zone name as
	// argument. Empty means no hook is run (internal/enforcer.ShellDSHook
	// treats an empty cmd as a no-op).
	DSSubmitCmd  string
	DSRetractCmd string
}

// DbConf names the sqlite database file, mirroring tdns.DbConf/music.DbConf.
type DbConf struct {
	File string `validate:"required"`
}

// HsmConf describes the keystore backend, spec.md §6.1. Its fields are
// validated on load but not read by the daemon, which always uses the
// in-memory soft keystore this repo ships (internal/keystore.SoftHSM).
type HsmConf struct {
	Backend string `validate:"required,oneof=soft pkcs11"`
	Module  string
	Pin     string
	Dir     string
}

// SchedulerConf sizes the worker pool and the shared FIFO, spec.md §3.2/§3.3.
type SchedulerConf struct {
	WorkerCount   int `validate:"required,min=1"`
	FifoCapacity  int `validate:"required,min=1"`
}

// CommandSocketConf configures the operator command surface, spec.md §6.3.
type CommandSocketConf struct {
	Path string `validate:"required"`
}

// LogConf controls log destination and verbosity, mirroring tdns.Config's
// Log/Service sections.
type LogConf struct {
	File    string
	Debug   *bool
	Verbose *bool
}

// InternalConf carries runtime-only state attached to a loaded Config that
// has no business being un/marshaled to YAML, mirroring
// music.Config.Internal/tdns.Config.Internal.
type InternalConf struct {
	CfgFile string
}

// Globals mirrors tdns.Globals: package-level flags read by
// internal/logging for Debug-gated output, set once at startup from the
// loaded Config's Log section.
var Globals = struct {
	Debug   bool
	Verbose bool
}{}

// Load reads cfgFile with viper, unmarshals it into a Config, and
// validates each section independently (tdns/config.go's
// ValidateBySection), so a missing field in one section doesn't prevent
// reporting problems in another. Globals.Debug/Verbose are set as a side
// effect, the same global the rest of the daemon reads.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = DefaultCfgFile
	}
	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config.Load: reading %q: %w", cfgFile, err)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshal %q: %w", cfgFile, err)
	}
	conf.Internal.CfgFile = cfgFile

	if err := validateBySection(&conf, cfgFile); err != nil {
		return nil, err
	}

	if conf.Log.Debug != nil {
		Globals.Debug = *conf.Log.Debug
	}
	if conf.Log.Verbose != nil {
		Globals.Verbose = *conf.Log.Verbose
	}

	log.Printf("config.Load: %q loaded and validated", cfgFile)
	return &conf, nil
}

// validateBySection validates each named config section on its own, so
// the reported error names the offending section the way
// tdns.ValidateBySection does.
func validateBySection(conf *Config, cfgFile string) error {
	validate := validator.New()
	sections := map[string]interface{}{
		"enforcer":      conf.Enforcer,
		"db":            conf.Db,
		"hsm":           conf.Hsm,
		"scheduler":     conf.Scheduler,
		"commandsocket": conf.CommandSocket,
	}
	for name, data := range sections {
		if err := validate.Struct(data); err != nil {
			return fmt.Errorf("config %q: section %q: missing required attributes: %w", cfgFile, strings.ToLower(name), err)
		}
	}
	return nil
}
