package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/seat-allocator/internal/apportionment"
	"github.com/eugenenazirov/seat-allocator/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string           `yaml:"port"`
	LogLevel             string           `yaml:"log_level"`
	Settings             storage.Settings `yaml:"-"`
	ShutdownGracePeriod  time.Duration    `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    time.Duration    `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration    `yaml:"write_timeout"`
	IdleTimeout          time.Duration    `yaml:"idle_timeout"`
	EnableRequestLogging bool             `yaml:"enable_request_logging"`
	RateLimitRPS         float64          `yaml:"-"`
	RateLimitBurst       int              `yaml:"-"`
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string         `yaml:"port"`
	LogLevel             string         `yaml:"log_level"`
	Seats                *int           `yaml:"seats"`
	ApplyThreshold       *bool          `yaml:"apply_threshold"`
	Threshold            *float64       `yaml:"threshold"`
	FirstDivisor         *float64       `yaml:"first_divisor"`
	TieBreak             string         `yaml:"tie_break"`
	NoSeats              string         `yaml:"no_seats"`
	ShutdownGracePeriod  string         `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string         `yaml:"read_header_timeout"`
	WriteTimeout         string         `yaml:"write_timeout"`
	IdleTimeout          string         `yaml:"idle_timeout"`
	EnableRequestLogging *bool          `yaml:"enable_request_logging"`
	RateLimit            *yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	LogLevel       *string
	Seats          *int
	ApplyThreshold *bool
	TieBreak       *string
	NoSeats        *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables first so YAML can override them
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             "info",
		Settings:             storage.DefaultSettings(),
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.Seats != nil {
		cfg.Settings.TotalSeats = *yamlCfg.Seats
	}
	if yamlCfg.ApplyThreshold != nil {
		cfg.Settings.Options.ApplyThreshold = *yamlCfg.ApplyThreshold
	}
	if yamlCfg.Threshold != nil {
		cfg.Settings.Options.Threshold = *yamlCfg.Threshold
	}
	if yamlCfg.FirstDivisor != nil {
		cfg.Settings.Options.FirstDivisor = *yamlCfg.FirstDivisor
	}
	if yamlCfg.TieBreak != "" {
		tieBreak, err := apportionment.ParseTieBreak(yamlCfg.TieBreak)
		if err != nil {
			return err
		}
		cfg.Settings.Options.TieBreak = tieBreak
	}
	if yamlCfg.NoSeats != "" {
		style, err := apportionment.ParseNoSeatsStyle(yamlCfg.NoSeats)
		if err != nil {
			return err
		}
		cfg.Settings.Options.NoSeats = style
	}

	durations := []struct {
		raw    string
		target *time.Duration
	}{
		{yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", d.raw, err)
		}
		*d.target = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit != nil {
		cfg.RateLimitRPS = yamlCfg.RateLimit.RPS
		cfg.RateLimitBurst = yamlCfg.RateLimit.Burst
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if seats := strings.TrimSpace(os.Getenv("SEATS")); seats != "" {
		value, err := parseSeats(seats)
		if err != nil {
			return fmt.Errorf("SEATS: %w", err)
		}
		cfg.Settings.TotalSeats = value
	}

	if raw := strings.TrimSpace(os.Getenv("APPLY_THRESHOLD")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("APPLY_THRESHOLD: %w", err)
		}
		cfg.Settings.Options.ApplyThreshold = value
	}

	if raw := strings.TrimSpace(os.Getenv("TIE_BREAK")); raw != "" {
		tieBreak, err := apportionment.ParseTieBreak(raw)
		if err != nil {
			return fmt.Errorf("TIE_BREAK: %w", err)
		}
		cfg.Settings.Options.TieBreak = tieBreak
	}

	if raw := strings.TrimSpace(os.Getenv("NO_SEATS")); raw != "" {
		style, err := apportionment.ParseNoSeatsStyle(raw)
		if err != nil {
			return fmt.Errorf("NO_SEATS: %w", err)
		}
		cfg.Settings.Options.NoSeats = style
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.Seats != nil {
		cfg.Settings.TotalSeats = *overrides.Seats
	}

	if overrides.ApplyThreshold != nil {
		cfg.Settings.Options.ApplyThreshold = *overrides.ApplyThreshold
	}

	if overrides.TieBreak != nil && *overrides.TieBreak != "" {
		tieBreak, err := apportionment.ParseTieBreak(*overrides.TieBreak)
		if err != nil {
			return fmt.Errorf("parse tie break: %w", err)
		}
		cfg.Settings.Options.TieBreak = tieBreak
	}

	if overrides.NoSeats != nil && *overrides.NoSeats != "" {
		style, err := apportionment.ParseNoSeatsStyle(*overrides.NoSeats)
		if err != nil {
			return fmt.Errorf("parse no-seats style: %w", err)
		}
		cfg.Settings.Options.NoSeats = style
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.Settings.TotalSeats < 0 || cfg.Settings.TotalSeats > storage.MaxTotalSeats {
		return fmt.Errorf("seats must be between 0 and %d, got %d", storage.MaxTotalSeats, cfg.Settings.TotalSeats)
	}
	if err := cfg.Settings.Options.Validate(); err != nil {
		return fmt.Errorf("apportionment options: %w", err)
	}
	return nil
}

// parseSeats parses a seat total, rejecting negative values.
func parseSeats(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("seats must be non-negative, got %d", value)
	}
	return value, nil
}
