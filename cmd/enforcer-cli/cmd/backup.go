package cmd

import "github.com/spf13/cobra"

var backupLocator string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage HSM key backup state: list|prepare|commit|rollback, spec.md §6.3",
}

func simpleBackupCmd(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			printResult(post("/v1/backup", map[string]string{"command": command, "locator": backupLocator}))
		},
	}
}

var (
	backupListCmd     = simpleBackupCmd("list", "List hsm keys and their backup state", "list")
	backupPrepareCmd  = simpleBackupCmd("prepare", "Mark a key's backup as requested", "prepare")
	backupCommitCmd   = simpleBackupCmd("commit", "Mark a key's backup done", "commit")
	backupRollbackCmd = simpleBackupCmd("rollback", "Roll a key's backup state back", "rollback")
)

func init() {
	backupCmd.AddCommand(backupListCmd, backupPrepareCmd, backupCommitCmd, backupRollbackCmd)
	for _, c := range []*cobra.Command{backupPrepareCmd, backupCommitCmd, backupRollbackCmd} {
		c.Flags().StringVar(&backupLocator, "locator", "", "key locator")
		c.MarkFlagRequired("locator")
	}
}
