package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level ambigdb configuration file.
type YAMLConfig struct {
	Validation ValidationConfig `yaml:"validation"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ValidationConfig tunes the resolvers and the batch runner.
type ValidationConfig struct {
	MinEntityRows    int    `yaml:"min_entity_rows"`
	MinComponentRows int    `yaml:"min_component_rows"`
	MinTableColumns  int    `yaml:"min_table_columns"`
	Workers          int    `yaml:"workers"`
	Seed             uint64 `yaml:"seed"`
	Verbose          bool   `yaml:"verbose"`
}

// StoreConfig locates the run ledger. An empty DataDir disables it.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	MaxBodySize     string `yaml:"max_body_size"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	RateLimit       int    `yaml:"rate_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Fields missing from the file keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Validation: ValidationConfig{
			MinEntityRows:    3,
			MinComponentRows: 3,
			MinTableColumns:  0,
			Workers:          4,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			MaxBodySize:     "10MB",
			ShutdownTimeout: "30s",
			RateLimit:       100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects values the validator or server cannot run with.
func (c *YAMLConfig) Validate() error {
	var problems []string
	if c.Validation.MinEntityRows < 1 {
		problems = append(problems, "validation.min_entity_rows must be at least 1")
	}
	if c.Validation.MinComponentRows < 1 {
		problems = append(problems, "validation.min_component_rows must be at least 1")
	}
	if c.Validation.MinTableColumns < 0 {
		problems = append(problems, "validation.min_table_columns must not be negative")
	}
	if c.Validation.Workers < 1 {
		problems = append(problems, "validation.workers must be at least 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if _, err := ParseByteSize(c.Server.MaxBodySize); err != nil {
		problems = append(problems, "server.max_body_size: "+err.Error())
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		problems = append(problems, "server.shutdown_timeout: "+err.Error())
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not text or json", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseByteSize parses sizes such as "512", "64KB" or "10MB".
func ParseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			mult = unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
