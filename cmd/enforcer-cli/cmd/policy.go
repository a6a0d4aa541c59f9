package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

var policyID, policyFile string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage KASP policies: list|import|purge, spec.md §6.3",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known policies",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/policy", map[string]string{"command": "list"}))
	},
}

var policyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a policy from a JSON file",
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(policyFile)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		var p keymodel.Policy
		if err := json.Unmarshal(data, &p); err != nil {
			fmt.Printf("Error: parsing %s: %v\n", policyFile, err)
			return
		}
		printResult(post("/v1/policy", struct {
			Command string          `json:"command"`
			ID      string          `json:"id"`
			Policy  *keymodel.Policy `json:"policy"`
		}{"import", p.ID, &p}))
	},
}

var policyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove a policy",
	Run: func(cmd *cobra.Command, args []string) {
		printResult(post("/v1/policy", map[string]string{"command": "purge", "id": policyID}))
	},
}

func init() {
	policyCmd.AddCommand(policyListCmd, policyImportCmd, policyPurgeCmd)

	policyImportCmd.Flags().StringVar(&policyFile, "file", "", "policy JSON file")
	policyImportCmd.MarkFlagRequired("file")

	policyPurgeCmd.Flags().StringVar(&policyID, "id", "", "policy id")
	policyPurgeCmd.MarkFlagRequired("id")
}
