package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateShopData(&cfg.ShopData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateShopData(data *ShopData, result *ValidationResult) {
	if len(data.Servers) == 0 {
		result.AddError("shop_data.rcon_servers", "at least one RCON server is required")
	}

	seen := make(map[string]bool)
	for i, s := range data.Servers {
		field := fmt.Sprintf("shop_data.rcon_servers[%d]", i)

		if strings.TrimSpace(s.Name) == "" {
			result.AddError(field+".name", "server name is required")
		}
		if seen[s.Name] {
			result.AddError(field+".name", fmt.Sprintf("duplicate server name %q", s.Name))
		}
		seen[s.Name] = true

		if strings.TrimSpace(s.Host) == "" {
			result.AddError(field+".host", "server host is required")
		} else if ip := net.ParseIP(s.Host); ip == nil {
			// Not a literal IP, must at least look like a hostname
			if strings.ContainsAny(s.Host, " /") {
				result.AddError(field+".host", fmt.Sprintf("invalid host %q", s.Host))
			}
		}

		if s.Port < 1 || s.Port > 65535 {
			result.AddError(field+".port", fmt.Sprintf("port %d out of range", s.Port))
		}

		if s.Password == "" {
			result.AddWarning(field+".password",
				"no RCON password configured; set it here or via RCON_PASSWORD")
		}
	}

	if data.RCONTimeoutSec <= 0 {
		result.AddWarning("shop_data.rcon_timeout_sec", "timeout must be positive, using default 10s")
		data.RCONTimeoutSec = 10
	}
	if data.RCONRetryAttempts < 1 {
		result.AddWarning("shop_data.rcon_retry_attempts", "retry attempts must be >= 1, using default 3")
		data.RCONRetryAttempts = 3
	}

	if data.APIPort < 1 || data.APIPort > 65535 {
		result.AddError("shop_data.api_port", fmt.Sprintf("port %d out of range", data.APIPort))
	}

	if data.CatalogPath != "" {
		if _, err := os.Stat(data.CatalogPath); os.IsNotExist(err) {
			result.AddWarning("shop_data.catalog_path",
				fmt.Sprintf("catalog file %s does not exist yet", data.CatalogPath))
		}
	}

	for role, pct := range data.Discounts {
		if pct <= 0 || pct > 100 {
			result.AddError("shop_data.discounts",
				fmt.Sprintf("discount for role %q must be between 0 and 100, got %g", role, pct))
		}
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.Timers.RedeliverySweepInterval < 10 {
		result.AddWarning("application_data.timers.redelivery_sweep_interval_sec",
			"sweep interval below 10s, using default 300s")
		data.Timers.RedeliverySweepInterval = 300
	}

	if data.Tip4Serv.Enabled && data.Tip4Serv.Secret == "" {
		result.AddWarning("application_data.tip4serv.secret",
			"tip4serv enabled without a secret; webhook signatures will not be verified")
	}

	if data.MQTT.Enabled && data.MQTT.BrokerURL == "" {
		result.AddError("application_data.mqtt.broker_url", "MQTT enabled but no broker URL set")
	}

	if !data.Security.AuthDisabled && data.Security.APIToken == "" {
		result.AddWarning("application_data.security.api_token",
			"API auth enabled without a token; set WRECKSSHOP_API_TOKEN or disable auth")
	}

	switch data.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application_data.logging.level",
			fmt.Sprintf("unknown log level %q, using info", data.Logging.Level))
		data.Logging.Level = "info"
	}
}
