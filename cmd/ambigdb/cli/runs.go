package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/config"
	"github.com/ambigdb/ambigdb/internal/model"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
		Long:  "List, show and delete validation runs recorded in the run ledger under --data-dir.",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsDeleteCmd())

	return cmd
}

// openLedgerRequired opens the configured ledger and fails when none is set.
func openLedgerRequired() (*config.Store, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if settings.Store.DataDir == "" {
		return nil, errors.New("no run ledger configured: pass --data-dir or set store.data_dir")
	}
	return openLedger(settings.Store.DataDir)
}

// ---------- runs list ----------

func newRunsListCmd() *cobra.Command {
	var (
		filter        model.RunFilter
		configuration string
		accepted      string
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recorded runs, newest first",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if configuration != "" {
				cfg, err := model.ParseConfiguration(configuration)
				if err != nil {
					return err
				}
				filter.Configuration = cfg
			}
			if accepted != "" {
				b, err := strconv.ParseBool(accepted)
				if err != nil {
					return fmt.Errorf("invalid --accepted %q", accepted)
				}
				filter.Accepted = &b
			}
			return runRunsList(cmd, filter, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&filter.DBID, "db-id", "", "only runs of this database")
	cmd.Flags().StringVar(&configuration, "configuration", "", "only runs of this configuration")
	cmd.Flags().StringVar(&accepted, "accepted", "", "only accepted (true) or rejected (false) runs")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum runs to list")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "runs to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRunsList(cmd *cobra.Command, filter model.RunFilter, jsonOutput bool) error {
	store, err := openLedgerRequired()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		if runs == nil {
			runs = []model.Run{}
		}
		return printJSON(w, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	if thresholds, err := store.GetSetting(context.Background(), thresholdsKey); err == nil {
		fmt.Fprintf(w, "Thresholds: %s\n\n", thresholds)
	}

	fmt.Fprintf(w, "%-36s %-20s %-9s %-9s %-20s %s\n", "RUN_ID", "DB_ID", "CONFIG", "ACCEPTED", "NEXT_ACTION", "STARTED")
	for _, r := range runs {
		acc := "yes"
		if !r.Accepted {
			acc = "no"
		}
		fmt.Fprintf(w, "%-36s %-20s %-9s %-9s %-20s %s\n",
			r.ID, r.DBID, r.Configuration, acc, r.NextAction, r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// ---------- runs show ----------

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its binding and repair statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedgerRequired()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("look up run %q: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
}

// ---------- runs delete ----------

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <run-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a run and its repair statements",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedgerRequired()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteRun(context.Background(), args[0]); err != nil {
				return fmt.Errorf("delete run %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
