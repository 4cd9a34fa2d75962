package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/service"
)

func newValidateCmd() *cobra.Command {
	var (
		req           service.Request
		specFile      string
		configuration string
		concept       string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one concept against one candidate database",
		Long: `Validate one concept against one candidate database and print the outcome as JSON.

The concept comes either from --spec, a JSON file holding
{"configuration": ..., "concept": {...}}, or from --configuration with --concept
holding the concept fields inline. The command exits 2 when the candidate is
rejected; the outcome's next_action says what the generation loop should do.`,
		Example: `  ambigdb validate --db-id fruit --dsn fruit.sqlite \
    --configuration 1tab_val --concept '{"class1":"apple","class2":"cherry","common_property":"color"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(specFile, configuration, concept)
			if err != nil {
				return err
			}
			req.Spec = spec
			return runValidate(cmd, req)
		},
	}

	cmd.Flags().StringVar(&req.DBID, "db-id", "", "candidate database id (required)")
	cmd.Flags().StringVar(&req.DSN, "dsn", "", "candidate DSN or SQLite path (required)")
	cmd.Flags().StringVar(&req.Driver, "driver", "", "driver: sqlite, postgres or mysql (default: inferred from the DSN)")
	cmd.Flags().StringVar(&req.Schema, "schema", "", "schema or database name for server databases")
	cmd.Flags().StringVar(&specFile, "spec", "", "concept spec JSON file, or - for stdin")
	cmd.Flags().StringVar(&configuration, "configuration", "", "configuration: 1tab_val, 1tab_ref, 2tab_val, 2tab_ref, scope, 2cols, 2tabs")
	cmd.Flags().StringVar(&concept, "concept", "", "concept fields as a JSON object")
	cmd.Flags().IntVar(&req.Attempt.Index, "attempt", 1, "attempt number of this candidate")
	cmd.Flags().IntVar(&req.Attempt.Budget, "budget", 0, "attempt budget; the last attempt turns regenerate into discard (0 = unbounded)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "roll back repair inserts instead of committing them")
	cmd.MarkFlagRequired("db-id")
	cmd.MarkFlagRequired("dsn")
	cmd.MarkFlagsMutuallyExclusive("spec", "configuration")

	return cmd
}

// loadSpec reads a ConceptSpec from file, or assembles one from an inline
// configuration and concept object.
func loadSpec(file, configuration, concept string) (model.ConceptSpec, error) {
	var spec model.ConceptSpec
	var data []byte
	switch {
	case file != "":
		raw, err := readInput(file, os.Stdin)
		if err != nil {
			return spec, fmt.Errorf("read spec: %w", err)
		}
		data = raw
	case configuration != "":
		if concept == "" {
			concept = "{}"
		}
		envelope := map[string]json.RawMessage{
			"configuration": json.RawMessage(fmt.Sprintf("%q", configuration)),
			"concept":       json.RawMessage(concept),
		}
		raw, err := json.Marshal(envelope)
		if err != nil {
			return spec, fmt.Errorf("concept is not a JSON object: %w", err)
		}
		data = raw
	default:
		return spec, fmt.Errorf("one of --spec or --configuration is required")
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse spec: %w", err)
	}
	return spec, nil
}

func runValidate(cmd *cobra.Command, req service.Request) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(settings.Logging, cmd.ErrOrStderr())

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

	v := service.NewValidator(newRegistry(), ledger, validatorOptions(settings.Validation), logger)
	out := v.Validate(context.Background(), req)
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !out.Accepted {
		return fmt.Errorf("%w: %s: next action %s", errRejected, req.DBID, out.NextAction)
	}
	return nil
}
