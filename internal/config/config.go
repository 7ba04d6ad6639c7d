package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is filled in from build information by the main package.
var Version = "dev"

var validate = validator.New()

// Config holds every sub-config.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"    validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"   validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"      validate:"required"`
	Push      PushConfig      `mapstructure:"push"       validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
}

func init() {
	registerCustomValidators()
}

func registerCustomValidators() {
	// ":8080" or "host:port"
	if err := validate.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return false
		}
		if strings.HasPrefix(addr, ":") {
			_, err := net.LookupPort("tcp", addr[1:])
			return err == nil
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return false
		}
		if host == "" || net.ParseIP(host) != nil {
			return true
		}
		matched, _ := regexp.MatchString(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`, host)
		return matched
	}); err != nil {
		logger.Error("register listen_addr validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}); err != nil {
		logger.Error("register log_level validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		f := fl.Field().String()
		return f == "console" || f == "json"
	}); err != nil {
		logger.Error("register log_format validator", zap.Error(err))
	}

	// Heartbeats and rate windows must be sane: 1s to 24h.
	if err := validate.RegisterValidation("reasonable_duration", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(time.Duration)
		if !ok {
			return false
		}
		return d >= time.Second && d <= 24*time.Hour
	}); err != nil {
		logger.Error("register reasonable_duration validator", zap.Error(err))
	}
}

// SetVersion records the build version for logs and the health endpoint.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults -> optional file -> PUSHGATE_* env vars, validates,
// and initializes the global logger from the result.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PUSHGATE") // PUSHGATE_DATABASE_URL etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err == nil && log != nil {
			log.Info("loaded config.yaml from current directory")
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if err := logger.Init(
		logger.WithLevel(cfg.Logging.Level),
		logger.WithFormat(cfg.Logging.Format),
		logger.WithFile(cfg.Logging.FilePath),
		logger.WithVersion(Version),
		logger.WithRotation(cfg.Logging.MaxSize, cfg.Logging.MaxBackups, cfg.Logging.MaxAge),
	); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	return &cfg, nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fe.Field(), fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fe.Field(), fe.Param(), fe.Value())
	case "listen_addr":
		return fmt.Sprintf("%s must be a listen address in ':port' or 'host:port' form (got: %v)", fe.Field(), fe.Value())
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", fe.Field(), fe.Value())
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", fe.Field(), fe.Value())
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
