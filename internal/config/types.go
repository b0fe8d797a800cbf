package config

// Config holds the job configuration loaded from the optional YAML file.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Report  ReportConfig  `yaml:"report"`
	Email   EmailConfig   `yaml:"email"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
}

// APIConfig describes how to reach the Revcontent stats API.
type APIConfig struct {
	BaseURL           string      `yaml:"base_url"`
	TimeoutSeconds    int         `yaml:"timeout_seconds"`
	RequestsPerSecond float64     `yaml:"requests_per_second"` // 0 means unlimited
	BoostsPageSize    int         `yaml:"boosts_page_size"`    // 0 means a single unpaged request
	MaxPages          int         `yaml:"max_pages"`           // 0 means no page cap
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig holds settings for the data-presence retry loop.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	Backoff     int `yaml:"backoff_seconds"`
}

// ReportConfig controls where and how the CSV report is produced.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	SchemaDrift string `yaml:"schema_drift"` // "error" or "drop"
}

// EmailConfig controls delivery of the finished report.
type EmailConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
	Host    string `yaml:"host"`
}

// IsEnabled reports whether email delivery is on. Delivery defaults to on.
func (e EmailConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig points at an optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// HistoryConfig points at the optional SQLite run ledger.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Credentials are read from the environment, never from the YAML file.
type Credentials struct {
	ClientID       string
	ClientSecret   string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	ToEmail        string
}
