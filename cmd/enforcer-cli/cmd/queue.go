package cmd

import "github.com/spf13/cobra"

var flushType string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Enumerate the scheduled tasks (read-only), spec.md §6.3",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/queue", struct{}{}))
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Set all matching tasks' due time to 0 so they run at once",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/flush", struct {
			Type string `json:"type"`
		}{flushType}))
	},
}

func init() {
	flushCmd.Flags().StringVar(&flushType, "type", "", "only flush tasks of this type (default: all)")
}
