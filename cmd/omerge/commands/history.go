package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openmerge/openmerge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded merge runs",
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded merge runs, newest first",
		Example: `  # Show the last 20 runs
  omerge history list --state runs.db

  # Page through older runs
  omerge history list --state runs.db --limit 50 --offset 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListMergeRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPOLICY\tLIST\tSTATUS\tCHANGED\tSTARTED\tCURRENT\tEXPECTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
					run.ID, run.Policy, run.ListDiff, run.Status, run.Changed,
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.CurrentPath, run.ExpectedPath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded merge run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetMergeRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}

	return cmd
}

func requireStore(cmd *cobra.Command) (stores.Store, error) {
	if statePath == "" {
		return nil, fmt.Errorf("history requires --state pointing at a history database")
	}
	store, err := openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	return store, nil
}
