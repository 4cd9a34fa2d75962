package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/connector/sqlite"
	"github.com/ambigdb/ambigdb/internal/query"
	"github.com/ambigdb/ambigdb/internal/schema"
)

func newSanitizeCmd() *cobra.Command {
	var (
		out        string
		minColumns int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sanitize <model-output|->",
		Short: "Extract SQLite statements from raw model output",
		Long: `Extract the CREATE TABLE and INSERT INTO statements from raw language-model
output and rewrite them for SQLite: ENUM becomes CHECK, NOT NULL and column-level
UNIQUE markers are dropped, INT and SERIAL keys become INTEGER, and CHECK(...) and
UNIQUE(...) clauses are stripped.

With --out the statements are executed into a new SQLite database in one
transaction, which then becomes a candidate for 'ambigdb validate'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSanitize(cmd, args[0], out, minColumns, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "SQLite file to create and fill with the statements")
	cmd.Flags().IntVar(&minColumns, "min-columns", 0, "with --out, fail when a created table has fewer columns")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print statements as JSON")

	return cmd
}

func runSanitize(cmd *cobra.Command, path, out string, minColumns int, jsonOutput bool) error {
	data, err := readInput(path, os.Stdin)
	if err != nil {
		return fmt.Errorf("read model output: %w", err)
	}
	stmts := query.Sanitize(string(data))
	if len(stmts.Creates) == 0 {
		return fmt.Errorf("no complete %s statement found", query.KeywordCreate)
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(w, stmts); err != nil {
			return err
		}
	} else if out == "" {
		fmt.Fprintln(w, strings.Join(stmts.All(), "\n\n"))
	}

	if out == "" {
		return nil
	}
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists", out)
	}

	conn := sqlite.New()
	if err := conn.Connect(connector.ConnectionConfig{DSN: out, Create: true}); err != nil {
		return err
	}
	defer conn.Disconnect()

	ctx := context.Background()
	if err := query.ExecuteStatements(ctx, conn.DB(), stmts.All()); err != nil {
		conn.Disconnect()
		os.Remove(out)
		return fmt.Errorf("execute into %s: %w", out, err)
	}

	desc, err := schema.Introspect(ctx, conn, conn.DB(), strings.TrimSuffix(out, ".sqlite"), nil)
	if err != nil {
		return err
	}
	if err := query.CountColumns(desc, minColumns); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(w, "Created %s: %d tables, %d inserts\n", out, len(desc.RealTables()), len(stmts.Inserts))
	}
	return nil
}
