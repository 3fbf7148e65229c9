package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and story counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			runningKind := statusWarn
			if status.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
			fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Storage", statusInfo, status.StorageBackend, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Text model", statusInfo, status.TextModel, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Image model", statusInfo, status.ImageModel, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Stories", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(status.Stories) == 0 {
				fmt.Fprintln(stdout, statusIndent+"No stories yet")
				return nil
			}

			statuses := make([]string, 0, len(status.Stories))
			for name := range status.Stories {
				statuses = append(statuses, name)
			}
			sort.Strings(statuses)
			rows := make([][]string, 0, len(statuses))
			for _, name := range statuses {
				rows = append(rows, []string{name, strconv.Itoa(status.Stories[name])})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}
