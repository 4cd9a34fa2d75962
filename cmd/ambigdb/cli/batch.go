package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/service"
)

func newBatchCmd() *cobra.Command {
	var (
		workers int
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "batch <requests.json|->",
		Short: "Validate many candidates in parallel",
		Long: `Validate a batch of requests read from a JSON array or from JSON lines, one
request per line. Each request has the shape accepted by POST /api/v1/validate:
{"db_id", "dsn", "driver", "schema", "spec", "attempt", "dry_run"}.

Outcomes are printed in request order. An interrupt stops candidates that have
not started; running candidates finish and are recorded. The command exits 2 when
any candidate was rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], workers, summary)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "candidates validated in parallel (default: validation.workers)")
	cmd.Flags().BoolVar(&summary, "summary", false, "print one line per candidate instead of JSON")

	return cmd
}

func runBatch(cmd *cobra.Command, path string, workers int, summary bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if workers > 0 {
		settings.Validation.Workers = workers
	}
	logger := newLogger(settings.Logging, cmd.ErrOrStderr())

	data, err := readInput(path, os.Stdin)
	if err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	reqs, err := decodeJSONOrLines[service.Request](data)
	if err != nil {
		return fmt.Errorf("parse requests: %w", err)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no requests in %s", path)
	}

	store, err := openLedger(settings.Store.DataDir)
	if err != nil {
		return err
	}
	var ledger service.Ledger
	if store != nil {
		defer store.Close()
		if err := recordThresholds(store, settings.Validation); err != nil {
			return fmt.Errorf("record thresholds: %w", err)
		}
		ledger = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := service.NewValidator(newRegistry(), ledger, validatorOptions(settings.Validation), logger)
	outcomes := v.ValidateBatch(ctx, reqs)

	rejected := 0
	for _, o := range outcomes {
		if !o.Accepted {
			rejected++
		}
	}

	w := cmd.OutOrStdout()
	if summary {
		fmt.Fprintf(w, "%-24s %-10s %-9s %-20s %s\n", "DB_ID", "CONFIG", "ACCEPTED", "NEXT_ACTION", "ERROR")
		for _, o := range outcomes {
			accepted := "yes"
			if !o.Accepted {
				accepted = "no"
			}
			fmt.Fprintf(w, "%-24s %-10s %-9s %-20s %s\n", o.DBID, o.Configuration, accepted, o.NextAction, o.Error)
		}
		fmt.Fprintf(w, "\n%d candidates, %d accepted, %d rejected\n", len(outcomes), len(outcomes)-rejected, rejected)
	} else if err := printJSON(w, outcomes); err != nil {
		return err
	}

	if rejected > 0 {
		return fmt.Errorf("%w: %d of %d candidates", errRejected, rejected, len(outcomes))
	}
	return nil
}
