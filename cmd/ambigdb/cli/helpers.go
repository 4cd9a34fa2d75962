package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ambigdb/ambigdb/internal/config"
	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/connector/mysql"
	"github.com/ambigdb/ambigdb/internal/connector/postgres"
	"github.com/ambigdb/ambigdb/internal/connector/sqlite"
)

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("sqlite", sqlite.New)
	return registry
}

// openLedger opens the run ledger under dir. An empty dir means no ledger;
// the returned store is nil and must not be used.
func openLedger(dir string) (*config.Store, error) {
	if dir == "" {
		return nil, nil
	}
	store, err := config.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	return store, nil
}

// thresholdsKey is the ledger setting holding the validation thresholds the
// most recent runs were produced with.
const thresholdsKey = "validation.thresholds"

func recordThresholds(store *config.Store, cfg config.ValidationConfig) error {
	data, err := json.Marshal(map[string]interface{}{
		"min_entity_rows":    cfg.MinEntityRows,
		"min_component_rows": cfg.MinComponentRows,
		"min_table_columns":  cfg.MinTableColumns,
		"seed":               cfg.Seed,
	})
	if err != nil {
		return err
	}
	return store.SetSetting(context.Background(), thresholdsKey, string(data))
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeJSONOrLines decodes data as a JSON array of T, or as one JSON value
// of T per non-empty line.
func decodeJSONOrLines[T any](data []byte) ([]T, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var out []T
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var out []T
	for i, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
