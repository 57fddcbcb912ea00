// Package config loads server settings from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mcclellann/pawnLoan/pkg/policy"
)

// Config holds everything the API server needs at startup.
type Config struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	DatabasePath string `mapstructure:"database_path"`
	LogLevel     string `mapstructure:"log_level"`

	// SweepInterval is how often, in minutes, the background sweep
	// refreshes payment-inactivity counters and logs the due book.
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`

	// DueSoonDays is the lookahead window for the due-loans dashboard.
	DueSoonDays int `mapstructure:"due_soon_days"`

	Policy PolicyConfig `mapstructure:"policy"`
}

// PolicyConfig carries the store policy knobs. LateFee is a string so the
// amount survives YAML and env parsing without float rounding.
type PolicyConfig struct {
	LoanTermDays     int    `mapstructure:"loan_term_days"`
	GraceDays        int    `mapstructure:"grace_days"`
	ForfeitMonths    int    `mapstructure:"forfeit_months"`
	ForfeitGraceDays int    `mapstructure:"forfeit_grace_days"`
	LateFee          string `mapstructure:"late_fee"`
}

// Load reads configuration from the given YAML file (optional; an empty path
// or missing file falls back to defaults) and from PAWN_-prefixed environment
// variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := policy.Default()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_path", "pawnloan.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("sweep_interval_minutes", 60)
	v.SetDefault("due_soon_days", 7)
	v.SetDefault("policy.loan_term_days", def.LoanTermDays)
	v.SetDefault("policy.grace_days", def.GraceDays)
	v.SetDefault("policy.forfeit_months", def.ForfeitMonths)
	v.SetDefault("policy.forfeit_grace_days", def.ForfeitGraceDays)
	v.SetDefault("policy.late_fee", def.LateFee.String())

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Policy.LoanTermDays <= 0 {
		return fmt.Errorf("loan_term_days must be positive, got %d", c.Policy.LoanTermDays)
	}
	if c.Policy.GraceDays < 0 {
		return fmt.Errorf("grace_days must not be negative, got %d", c.Policy.GraceDays)
	}
	if c.Policy.ForfeitMonths <= 0 {
		return fmt.Errorf("forfeit_months must be positive, got %d", c.Policy.ForfeitMonths)
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep_interval_minutes must be positive, got %d", c.SweepIntervalMinutes)
	}
	if _, err := decimal.NewFromString(c.Policy.LateFee); err != nil {
		return fmt.Errorf("late_fee %q is not a valid amount: %w", c.Policy.LateFee, err)
	}
	return nil
}

// StorePolicy converts the configured knobs into the policy the ledger runs
// under. Call only after Load has validated the config.
func (c *Config) StorePolicy() policy.Policy {
	fee, err := decimal.NewFromString(c.Policy.LateFee)
	if err != nil {
		fee = policy.Default().LateFee
	}
	return policy.Policy{
		LoanTermDays:     c.Policy.LoanTermDays,
		GraceDays:        c.Policy.GraceDays,
		ForfeitMonths:    c.Policy.ForfeitMonths,
		ForfeitGraceDays: c.Policy.ForfeitGraceDays,
		LateFee:          fee,
	}
}
