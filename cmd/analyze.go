package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "analyze <domain>",
		Short: "Analyze one competitor domain and print the record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			rec, runErr := appInstance.Analyze(cmd.Context(), owner, args[0])
			if rec.ID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("encode record: %w", err)
				}
			}
			if runErr != nil {
				return fmt.Errorf("analysis of %s did not complete: %w", args[0], runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id recorded on the analysis (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
