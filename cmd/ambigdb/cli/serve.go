package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ambigdb/ambigdb/internal/server"
	"github.com/ambigdb/ambigdb/internal/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the validation HTTP server",
		Long: `Start the HTTP server exposing POST /api/v1/validate, POST /api/v1/introspect and,
when a run ledger is configured, GET /api/v1/runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP listen port (default: server.port)")
	cmd.Flags().String("host", "", "HTTP listen host (default: server.host)")
	cmd.Flags().Int("rate-limit", 0, "requests per minute per client and endpoint (default: server.rate_limit)")

	bindFlag("server.port", cmd.Flags().Lookup("port"))
	bindFlag("server.host", cmd.Flags().Lookup("host"))
	bindFlag("server.rate_limit", cmd.Flags().Lookup("rate-limit"))

	return cmd
}

func runServe(cmd *cobra.Command) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(settings.Logging, cmd.ErrOrStderr())

	store, err := openLedger(settings.Store.DataDir)
	if err != nil {
		return err
	}
	var (
		ledger    service.Ledger
		srvLedger server.Ledger
	)
	if store != nil {
		defer store.Close()
		if err := recordThresholds(store, settings.Validation); err != nil {
			return fmt.Errorf("record thresholds: %w", err)
		}
		ledger, srvLedger = store, store
		logger.Info("run ledger opened", "path", settings.Store.DataDir)
	} else {
		logger.Warn("no run ledger configured, runs endpoints disabled")
	}

	registry := newRegistry()
	validator := service.NewValidator(registry, ledger, validatorOptions(settings.Validation), logger)

	srvCfg := serverConfig(settings.Server)
	srv := server.New(srvCfg, validator, registry, srvLedger, logger)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "→ ambigdb %s\n", versionString())
	fmt.Fprintf(w, "→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Fprintf(w, "→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Fprintf(w, "→ Drivers:    %v\n", registry.Drivers())

	return srv.ListenAndServe(context.Background())
}
