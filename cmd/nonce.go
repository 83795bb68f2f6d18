package cmd

import (
	"github.com/marcus/todos/internal/crypto"
	"github.com/marcus/todos/internal/output"
	"github.com/spf13/cobra"
)

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Generate a nonce for external sign in",
	Long: `Print a random raw nonce and its sha256. Give the hash to the identity
provider and the raw value to "todos auth credential --nonce".`,
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetInt("length")
		raw, err := crypto.NewNonce(length)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]string{"nonce": raw, "sha256": crypto.HashNonce(raw)})
		}
		output.Info("nonce:  %s", raw)
		output.Info("sha256: %s", crypto.HashNonce(raw))
		return nil
	},
}

func init() {
	nonceCmd.Flags().Int("length", 32, "nonce length")
	nonceCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(nonceCmd)
}
