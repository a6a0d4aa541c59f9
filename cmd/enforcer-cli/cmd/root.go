// Package cmd implements enforcer-cli's cobra command tree, grounded on
// tdns-cli/cmd/root.go: a persistent --config flag loaded via viper in
// cobra.OnInitialize, plus --debug/--verbose gating internal/logging's
// output the same way tdns.Globals.Debug/Verbose do.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opendnssec/opendnssec-sub014/internal/config"
	"github.com/opendnssec/opendnssec-sub014/internal/logging"
)

var cfgFile string
var socketPath string

var rootCmd = &cobra.Command{
	Use:   "enforcer-cli",
	Short: "enforcer-cli operates the enforcerd DNSSEC key lifecycle daemon",
}

// Execute runs the root command; called by main.main.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", config.DefaultCfgFile))
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "",
		"command socket path (overrides the config file's commandsocket.path)")
	rootCmd.PersistentFlags().BoolVarP(&config.Globals.Debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&config.Globals.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(queueCmd, flushCmd, zoneCmd, policyCmd, keyCmd, backupCmd, updateCmd)
}

func initConfig() {
	logging.SetupCLI()

	if cfgFile == "" {
		cfgFile = config.DefaultCfgFile
	}
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		// Most subcommands only need --socket, not a full config file;
		// a missing file is only fatal once a command actually needs a
		// path from it (resolveSocketPath below).
		if config.Globals.Verbose {
			log.Printf("enforcer-cli: no config file loaded: %v", err)
		}
		return
	}
	if socketPath == "" {
		socketPath = viper.GetString("commandsocket.path")
	}
}

func resolveSocketPath() string {
	if socketPath == "" {
		fmt.Fprintln(os.Stderr, "enforcer-cli: no command socket path: pass --socket or set commandsocket.path in the config file")
		os.Exit(1)
	}
	return socketPath
}
