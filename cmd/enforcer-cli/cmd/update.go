package cmd

import "github.com/spf13/cobra"

var updateCfgFile string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Trigger a reload: conf|kasp|zonelist|all, spec.md §6.3",
}

func simpleUpdateCmd(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			printResult(post("/v1/update", map[string]string{"command": command, "cfg_file": updateCfgFile}))
		},
	}
}

var (
	updateConfCmd     = simpleUpdateCmd("conf", "Re-read and validate a configuration file (running components keep their settings)", "conf")
	updateKaspCmd     = simpleUpdateCmd("kasp", "Acknowledge a KASP policy reload", "kasp")
	updateZonelistCmd = simpleUpdateCmd("zonelist", "Acknowledge a zonelist reload", "zonelist")
	updateAllCmd      = simpleUpdateCmd("all", "Same as conf", "all")
)

func init() {
	updateCmd.AddCommand(updateConfCmd, updateKaspCmd, updateZonelistCmd, updateAllCmd)
	for _, c := range updateCmd.Commands() {
		c.Flags().StringVar(&updateCfgFile, "config", "", "config file path (defaults to the built-in default config file)")
	}
}
