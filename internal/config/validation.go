package config

import (
	"fmt"
	"net/url"
	"strings"
)

var (
	knownLogLevels     = []string{"none", "error", "warn", "warning", "info", "debug"}
	knownDriftPolicies = []string{DriftError, DriftDrop}
)

// isValidEnumValue checks case-insensitively whether value is in allowedValues.
func isValidEnumValue(value string, allowedValues []string) bool {
	for _, allowed := range allowedValues {
		if strings.EqualFold(value, allowed) {
			return true
		}
	}
	return false
}

// ValidateConfigManually performs comprehensive validation of the loaded configuration.
// Every problem found is reported in the returned error, one per line.
func ValidateConfigManually(cfg *Config) error {
	var allErrors []string
	allErrors = append(allErrors, validateAPIConfig("Config.API", &cfg.API)...)
	allErrors = append(allErrors, validateReportConfig("Config.Report", &cfg.Report)...)
	allErrors = append(allErrors, validateEmailConfig("Config.Email", &cfg.Email)...)
	allErrors = append(allErrors, validateLoggingConfig("Config.Logging", &cfg.Logging)...)
	allErrors = append(allErrors, validateMetricsConfig("Config.Metrics", &cfg.Metrics)...)
	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	return nil
}

func validateURL(prefix, raw string) []string {
	parsedURL, err := url.ParseRequestURI(raw)
	if err != nil {
		return []string{fmt.Sprintf("- %s: invalid URL format: %v", prefix, err)}
	}
	if scheme := strings.ToLower(parsedURL.Scheme); scheme != "http" && scheme != "https" {
		return []string{fmt.Sprintf("- %s: invalid URL scheme '%s', must be http or https", prefix, parsedURL.Scheme)}
	}
	return nil
}

func validateAPIConfig(prefix string, cfg *APIConfig) []string {
	var errs []string
	if cfg.BaseURL == "" {
		errs = append(errs, fmt.Sprintf("- %s.BaseURL: is required", prefix))
	} else {
		errs = append(errs, validateURL(prefix+".BaseURL", cfg.BaseURL)...)
	}
	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("- %s.TimeoutSeconds: must be positive", prefix))
	}
	if cfg.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("- %s.RequestsPerSecond: cannot be negative", prefix))
	}
	if cfg.BoostsPageSize < 0 {
		errs = append(errs, fmt.Sprintf("- %s.BoostsPageSize: cannot be negative", prefix))
	}
	if cfg.MaxPages < 0 {
		errs = append(errs, fmt.Sprintf("- %s.MaxPages: cannot be negative", prefix))
	}
	errs = append(errs, validateRetryConfig(prefix+".Retry", &cfg.Retry)...)
	return errs
}

func validateRetryConfig(prefix string, cfg *RetryConfig) []string {
	var errs []string
	if cfg.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("- %s.MaxAttempts: must be at least 1", prefix))
	}
	if cfg.Backoff < 0 {
		errs = append(errs, fmt.Sprintf("- %s.Backoff: cannot be negative", prefix))
	}
	return errs
}

func validateReportConfig(prefix string, cfg *ReportConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.SchemaDrift, knownDriftPolicies) {
		errs = append(errs, fmt.Sprintf("- %s.SchemaDrift: invalid policy '%s', must be one of %v", prefix, cfg.SchemaDrift, knownDriftPolicies))
	}
	return errs
}

func validateEmailConfig(prefix string, cfg *EmailConfig) []string {
	var errs []string
	if strings.TrimSpace(cfg.Subject) == "" {
		errs = append(errs, fmt.Sprintf("- %s.Subject: cannot be blank", prefix))
	}
	if cfg.Host != "" {
		errs = append(errs, validateURL(prefix+".Host", cfg.Host)...)
	}
	return errs
}

func validateLoggingConfig(prefix string, cfg *LoggingConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.Level, knownLogLevels) {
		errs = append(errs, fmt.Sprintf("- %s.Level: invalid log level '%s', must be one of %v", prefix, cfg.Level, knownLogLevels))
	}
	return errs
}

func validateMetricsConfig(prefix string, cfg *MetricsConfig) []string {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	return validateURL(prefix+".PushgatewayURL", cfg.PushgatewayURL)
}
