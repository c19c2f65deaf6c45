// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Environment variables keep the names the test
// server has always read (PORT, ALLOWED_PATHS, ...).
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/fiftysocket/internal/logging"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener and the upgrade endpoint.
type ServerConfig struct {
	Host string `koanf:"host"`
	// Port 0 binds a random free port.
	Port           int      `koanf:"port" validate:"min=0,max=65535"`
	Paths          []string `koanf:"paths" validate:"min=1,dive,startswith=/"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	CORSOrigins    []string `koanf:"cors_origins"`
	MaxMessageSize int64    `koanf:"max_message_size" validate:"gt=0,lte=10485760"`

	// UpgradeRateLimit caps upgrade requests per minute per IP. Zero disables it.
	UpgradeRateLimit int           `koanf:"upgrade_rate_limit" validate:"min=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MetricsEnabled   bool          `koanf:"metrics_enabled"`
}

// RateLimitConfig is the per-connection inbound message limit.
type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	MessagesPerSecond float64 `koanf:"messages_per_second" validate:"required_if=Enabled true,gte=0"`
	Burst             int     `koanf:"burst" validate:"required_if=Enabled true,gte=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LoggingOptions converts the logging section for logging.Init.
func (c *Config) LoggingOptions() logging.Config {
	opts := logging.DefaultConfig()
	opts.Level = c.Logging.Level
	opts.Format = c.Logging.Format
	opts.Caller = c.Logging.Caller
	return opts
}

// AllowsAnyOrigin reports whether the origin check is disabled.
func (c *Config) AllowsAnyOrigin() bool {
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return len(c.Server.AllowedOrigins) == 0
}

// Validate checks the struct tags and returns every failed field in one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// LogSummary writes the effective configuration at info level.
func (c *Config) LogSummary(log zerolog.Logger) {
	log.Info().
		Str("addr", c.Addr()).
		Strs("paths", c.Server.Paths).
		Strs("allowed_origins", c.Server.AllowedOrigins).
		Bool("rate_limit", c.RateLimit.Enabled).
		Float64("messages_per_second", c.RateLimit.MessagesPerSecond).
		Int("burst", c.RateLimit.Burst).
		Bool("metrics", c.Server.MetricsEnabled).
		Msg("configuration loaded")
}

var validate = validator.New(validator.WithRequiredStructEnabled())
