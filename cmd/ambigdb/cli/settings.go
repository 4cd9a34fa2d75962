package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ambigdb/ambigdb/internal/config"
	"github.com/ambigdb/ambigdb/internal/server"
	"github.com/ambigdb/ambigdb/internal/service"
)

// loadSettings builds the effective configuration: defaults, then the config
// file (with ${ENV} expansion), then AMBIGDB_* variables and flags through
// viper.
func loadSettings() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrideInt(&cfg.Validation.MinEntityRows, "validation.min_entity_rows")
	overrideInt(&cfg.Validation.MinComponentRows, "validation.min_component_rows")
	overrideInt(&cfg.Validation.MinTableColumns, "validation.min_table_columns")
	overrideInt(&cfg.Validation.Workers, "validation.workers")
	if explicit("validation.seed") {
		cfg.Validation.Seed = viper.GetUint64("validation.seed")
	}
	if explicit("validation.verbose") {
		cfg.Validation.Verbose = viper.GetBool("validation.verbose")
	}
	overrideString(&cfg.Store.DataDir, "store.data_dir")
	overrideString(&cfg.Server.Host, "server.host")
	overrideInt(&cfg.Server.Port, "server.port")
	overrideString(&cfg.Server.MaxBodySize, "server.max_body_size")
	overrideString(&cfg.Server.ShutdownTimeout, "server.shutdown_timeout")
	overrideInt(&cfg.Server.RateLimit, "server.rate_limit")
	overrideString(&cfg.Logging.Level, "logging.level")
	overrideString(&cfg.Logging.Format, "logging.format")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// boundFlags maps viper keys to the flags bound to them.
var boundFlags = map[string]*pflag.Flag{}

// bindFlag binds flag to key in viper and remembers the binding so explicit
// can tell a changed flag from its default.
func bindFlag(key string, flag *pflag.Flag) {
	boundFlags[key] = flag
	viper.BindPFlag(key, flag)
}

// explicit reports whether key was set by a changed flag or an AMBIGDB_*
// variable. Values from the config file are read by LoadYAMLConfig instead,
// since viper does not expand ${ENV} references.
func explicit(key string) bool {
	if f, ok := boundFlags[key]; ok && f.Changed {
		return true
	}
	v, ok := os.LookupEnv("AMBIGDB_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok && v != ""
}

func overrideInt(dst *int, key string) {
	if explicit(key) {
		*dst = viper.GetInt(key)
	}
}

func overrideString(dst *string, key string) {
	if explicit(key) {
		*dst = viper.GetString(key)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func validatorOptions(cfg config.ValidationConfig) service.Options {
	return service.Options{
		MinEntityRows:    cfg.MinEntityRows,
		MinComponentRows: cfg.MinComponentRows,
		MinTableColumns:  cfg.MinTableColumns,
		Workers:          cfg.Workers,
		Seed:             cfg.Seed,
		Verbose:          cfg.Verbose,
	}
}

// serverConfig converts the validated server section. Sizes and durations
// were checked by Validate.
func serverConfig(cfg config.ServerConfig) server.Config {
	out := server.DefaultConfig()
	out.Host = cfg.Host
	out.Port = cfg.Port
	out.RateLimit = cfg.RateLimit
	if n, err := config.ParseByteSize(cfg.MaxBodySize); err == nil {
		out.MaxBodySize = n
	}
	if d, err := time.ParseDuration(cfg.ShutdownTimeout); err == nil {
		out.ShutdownTimeout = d
	}
	return out
}
