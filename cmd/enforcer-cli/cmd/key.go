package cmd

import "github.com/spf13/cobra"

var keyZone, keyLocator, keyRole string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage keys: generate|list|export|import|ds-submit|ds-seen|ds-retract|ds-gone|rollover|purge, spec.md §6.3",
}

func keyRequest(command string) map[string]string {
	return map[string]string{
		"command": command,
		"zone":    keyZone,
		"locator": keyLocator,
		"role":    keyRole,
	}
}

func simpleKeyCmd(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			printResult(post("/v1/key", keyRequest(command)))
		},
	}
}

var (
	keyGenerateCmd  = simpleKeyCmd("generate", "Generate a new key for a role", "generate")
	keyListCmd      = simpleKeyCmd("list", "List a zone's keys", "list")
	keyExportCmd    = simpleKeyCmd("export", "Export a key's public material", "export")
	keyImportCmd    = simpleKeyCmd("import", "Import key material (unsupported by the soft keystore)", "import")
	keyDSSubmitCmd  = simpleKeyCmd("ds-submit", "Mark a key's DS as submitted to the parent", "ds-submit")
	keyDSSeenCmd    = simpleKeyCmd("ds-seen", "Mark a key's DS as seen at the parent", "ds-seen")
	keyDSRetractCmd = simpleKeyCmd("ds-retract", "Mark a key's DS as being withdrawn", "ds-retract")
	keyDSGoneCmd    = simpleKeyCmd("ds-gone", "Mark a key's DS as gone from the parent", "ds-gone")
	keyRolloverCmd  = simpleKeyCmd("rollover", "Force a rollover of a role", "rollover")
	keyPurgeCmd     = simpleKeyCmd("purge", "Forcibly remove a key", "purge")
)

func init() {
	keyCmd.AddCommand(keyGenerateCmd, keyListCmd, keyExportCmd, keyImportCmd,
		keyDSSubmitCmd, keyDSSeenCmd, keyDSRetractCmd, keyDSGoneCmd, keyRolloverCmd, keyPurgeCmd)

	for _, c := range keyCmd.Commands() {
		c.Flags().StringVar(&keyZone, "zone", "", "zone name")
		c.Flags().StringVar(&keyLocator, "locator", "", "key locator")
		c.Flags().StringVar(&keyRole, "role", "", "key role (KSK|ZSK|CSK)")
	}
}
