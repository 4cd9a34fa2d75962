package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/query"
	"github.com/ambigdb/ambigdb/internal/schema"
)

func newIntrospectCmd() *cobra.Command {
	var (
		cfg        connector.ConnectionConfig
		dbID       string
		minColumns int
		tables     bool
	)

	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Print the schema descriptor of a candidate database",
		Long: `Read the catalog of a candidate database and print its index-based descriptor
as JSON: table and column names, column types, primary keys and foreign key pairs.
With --min-columns the command also fails when a table is narrower than required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntrospect(cmd, cfg, dbID, minColumns, tables)
		},
	}

	cmd.Flags().StringVar(&cfg.DSN, "dsn", "", "candidate DSN or SQLite path (required)")
	cmd.Flags().StringVar(&cfg.Driver, "driver", "", "driver: sqlite, postgres or mysql (default: inferred from the DSN)")
	cmd.Flags().StringVar(&cfg.SchemaName, "schema", "", "schema or database name for server databases")
	cmd.Flags().StringVar(&dbID, "db-id", "candidate", "database id recorded in the descriptor")
	cmd.Flags().IntVar(&minColumns, "min-columns", 0, "fail when a table has fewer columns (0 = no check)")
	cmd.Flags().BoolVar(&tables, "tables", false, "print one table per line with its column count")
	cmd.MarkFlagRequired("dsn")

	return cmd
}

func runIntrospect(cmd *cobra.Command, cfg connector.ConnectionConfig, dbID string, minColumns int, tables bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(settings.Logging, cmd.ErrOrStderr())

	conn, err := newRegistry().Open(cfg)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	desc, err := schema.Introspect(context.Background(), conn, conn.DB(), dbID, logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if tables {
		fmt.Fprintf(w, "%-30s %-8s %s\n", "TABLE", "COLUMNS", "PRIMARY KEY")
		for _, t := range desc.RealTables() {
			var pk []string
			for _, c := range desc.PrimaryKeyOf(t) {
				pk = append(pk, desc.ColumnName(c))
			}
			fmt.Fprintf(w, "%-30s %-8d %v\n", desc.TableName(t), len(desc.ColumnsOf(t)), pk)
		}
	} else if err := printJSON(w, desc); err != nil {
		return err
	}
	return query.CountColumns(desc, minColumns)
}
