package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPreviewsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "previews",
		Short: "Generate preview images for themes and art styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			summary, err := client.GeneratePreviews(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, summary)
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Generated %d theme and %d style previews (%d skipped, %d failed)\n",
				summary.ThemesGenerated, summary.StylesGenerated, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}
