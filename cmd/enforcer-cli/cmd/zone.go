package cmd

import "github.com/spf13/cobra"

var zoneName, zonePolicyID, zoneInputAdapter, zoneOutputAdapter, zoneSignconfPath string

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Manage zones: list|add|delete, spec.md §6.3",
}

var zoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known zones",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/zone", map[string]string{"command": "list"}))
	},
}

var zoneAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a zone",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/zone", struct {
			Command       string `json:"command"`
			Name          string `json:"name"`
			PolicyID      string `json:"policy_id"`
			InputAdapter  string `json:"input_adapter"`
			OutputAdapter string `json:"output_adapter"`
			SignconfPath  string `json:"signconf_path"`
		}{"add", zoneName, zonePolicyID, zoneInputAdapter, zoneOutputAdapter, zoneSignconfPath}))
	},
}

var zoneDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a zone",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/zone", map[string]string{"command": "delete", "name": zoneName}))
	},
}

func init() {
	zoneCmd.AddCommand(zoneListCmd, zoneAddCmd, zoneDeleteCmd)

	for _, c := range []*cobra.Command{zoneAddCmd, zoneDeleteCmd} {
		c.Flags().StringVar(&zoneName, "name", "", "zone name")
		c.MarkFlagRequired("name")
	}
	zoneAddCmd.Flags().StringVar(&zonePolicyID, "policy", "", "policy id")
	zoneAddCmd.Flags().StringVar(&zoneInputAdapter, "input", "", "input zone file path")
	zoneAddCmd.Flags().StringVar(&zoneOutputAdapter, "output", "", "output zone file path")
	zoneAddCmd.Flags().StringVar(&zoneSignconfPath, "signconf", "", "signconf output path")
}
