package config

import (
	"fmt"
	"os"

	"revstats/internal/util"

	"gopkg.in/yaml.v3"
)

// Defaults used when the YAML file omits a value.
const (
	DefaultBaseURL        = "https://api.revcontent.io"
	DefaultTimeoutSeconds = 30
	DefaultMaxAttempts    = 5
	DefaultBackoffSeconds = 5
	DefaultSubject        = "Revcontent - Daily Stats"
	DefaultBody           = "Here is the daily revcontent widget stats"
	DefaultSendGridHost   = "https://api.sendgrid.com"
	DefaultMetricsJob     = "revstats"
	DriftError            = "error"
	DriftDrop             = "drop"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	seedNumericDefaults(cfg)
	applyDefaults(cfg)
	return cfg
}

// seedNumericDefaults runs before YAML decoding so that an explicit zero in
// the file (for example backoff_seconds: 0) is kept rather than defaulted.
func seedNumericDefaults(cfg *Config) {
	cfg.API.TimeoutSeconds = DefaultTimeoutSeconds
	cfg.API.Retry.MaxAttempts = DefaultMaxAttempts
	cfg.API.Retry.Backoff = DefaultBackoffSeconds
}

// LoadConfig reads, parses, and validates the YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}

	var config Config
	seedNumericDefaults(&config)
	if err := yaml.Unmarshal(fileBytes, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in '%s': %w", filename, err)
	}

	applyDefaults(&config)
	expandEnv(&config)

	if err := ValidateConfigManually(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills blank string settings.
func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "."
	}
	if cfg.Report.SchemaDrift == "" {
		cfg.Report.SchemaDrift = DriftError
	}
	if cfg.Email.Subject == "" {
		cfg.Email.Subject = DefaultSubject
	}
	if cfg.Email.Body == "" {
		cfg.Email.Body = DefaultBody
	}
	if cfg.Email.Host == "" {
		cfg.Email.Host = DefaultSendGridHost
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = DefaultMetricsJob
	}
}

// expandEnv resolves $VAR and %VAR% references in path and URL fields.
func expandEnv(cfg *Config) {
	cfg.API.BaseURL = util.ExpandEnvUniversal(cfg.API.BaseURL)
	cfg.Report.OutputDir = util.ExpandEnvUniversal(cfg.Report.OutputDir)
	cfg.Email.Host = util.ExpandEnvUniversal(cfg.Email.Host)
	cfg.Metrics.PushgatewayURL = util.ExpandEnvUniversal(cfg.Metrics.PushgatewayURL)
	cfg.History.Path = util.ExpandEnvUniversal(cfg.History.Path)
}
