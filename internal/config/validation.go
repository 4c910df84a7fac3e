// validation.go - startup validation of the service settings.
//
// Every problem is collected before failing so a misconfigured deployment
// is reported in one go.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a numbered list of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidateListenAddr accepts "host:port" or ":port".
func (v *Validator) ValidateListenAddr(key, value string) {
	if value == "" {
		v.AddError(key, "listen address not set")
		return
	}

	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid listen address: %v", err))
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}
	if port < 0 || port > 65535 {
		v.AddError(key, "port must be between 0 and 65535")
	}
}

// ValidateEnum checks value is one of allowed.
func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePositiveDuration checks d is greater than zero.
func (v *Validator) ValidatePositiveDuration(key string, d time.Duration) {
	if d <= 0 {
		v.AddError(key, "must be a positive duration")
	}
}

// ValidateEndpoint accepts "host:port" or an http(s) URL without a path.
func (v *Validator) ValidateEndpoint(key, value string) {
	if !strings.Contains(value, "://") {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
}

// Validate checks cfg and returns a single error listing every problem.
func Validate(cfg *Config) error {
	v := NewValidator()

	v.ValidateListenAddr("EP_ADDR", cfg.Addr)
	v.ValidateEnum("EP_LOG_LEVEL", cfg.LogLevel, []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("EP_LOG_FORMAT", cfg.LogFormat, []string{"text", "json"})
	v.ValidateEnum("EP_ENV", cfg.Env, []string{"development", "staging", "production"})
	v.ValidatePositiveDuration("EP_POOL_CHECK_INTERVAL", cfg.PoolCheckInterval)
	v.ValidatePositiveDuration("EP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if cfg.PickRateLimit < 0 {
		v.AddError("EP_PICK_RATE_LIMIT", "must be zero (disabled) or positive")
	}

	// S3 is all or nothing.
	if cfg.S3.Enabled() {
		for key, val := range map[string]string{
			"EP_S3_ENDPOINT":   cfg.S3.Endpoint,
			"EP_S3_ACCESS_KEY": cfg.S3.AccessKey,
			"EP_S3_SECRET_KEY": cfg.S3.SecretKey,
			"EP_S3_BUCKET":     cfg.S3.Bucket,
		} {
			if val == "" {
				v.AddError(key, "required when any EP_S3_* setting is present")
			}
		}
		v.ValidateEndpoint("EP_S3_ENDPOINT", cfg.S3.Endpoint)
	}

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}
