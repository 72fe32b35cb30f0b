// Package config provides Viper-based configuration loading for the crawler.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// CombatConfig holds the tunable rule constants of the combat engine.
type CombatConfig struct {
	MaxFrontRow            int     `mapstructure:"max_front_row"`
	MaxBackRow             int     `mapstructure:"max_back_row"`
	FleeChance             float64 `mapstructure:"flee_chance"`
	InstantKillChance      float64 `mapstructure:"instant_kill_chance"`
	CritDoubleThreshold    int     `mapstructure:"crit_double_threshold"`
	RangedPreferenceChance float64 `mapstructure:"ranged_preference_chance"`
	AreaAttackMinTargets   int     `mapstructure:"area_attack_min_targets"`
	// Seed selects a deterministic random source; 0 uses the crypto source.
	Seed int64 `mapstructure:"seed"`
}

// ContentConfig locates the YAML and Lua content the simulator loads.
type ContentConfig struct {
	MonstersDir  string `mapstructure:"monsters_dir"`
	TreasureFile string `mapstructure:"treasure_file"`
	SpellsDir    string `mapstructure:"spells_dir"`
	EquipmentDir string `mapstructure:"equipment_dir"`
	ItemsDir     string `mapstructure:"items_dir"`
	ScriptsDir   string `mapstructure:"scripts_dir"`
	PartyFile    string `mapstructure:"party_file"`
	// ScriptInstructionLimit caps Lua opcodes per hook call; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Content  ContentConfig  `mapstructure:"content"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCombat(c.Combat); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must not be empty when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.MaxFrontRow < 1 {
		errs = append(errs, fmt.Sprintf("combat.max_front_row must be >= 1, got %d", c.MaxFrontRow))
	}
	if c.MaxBackRow < 1 {
		errs = append(errs, fmt.Sprintf("combat.max_back_row must be >= 1, got %d", c.MaxBackRow))
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"flee_chance", c.FleeChance},
		{"instant_kill_chance", c.InstantKillChance},
		{"ranged_preference_chance", c.RangedPreferenceChance},
	} {
		if p.value < 0 || p.value > 1 {
			errs = append(errs, fmt.Sprintf("combat.%s must be within [0, 1], got %g", p.name, p.value))
		}
	}
	if c.CritDoubleThreshold < 1 || c.CritDoubleThreshold > 20 {
		errs = append(errs, fmt.Sprintf("combat.crit_double_threshold must be 1-20, got %d", c.CritDoubleThreshold))
	}
	if c.AreaAttackMinTargets < 1 {
		errs = append(errs, fmt.Sprintf("combat.area_attack_min_targets must be >= 1, got %d", c.AreaAttackMinTargets))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.MonstersDir == "" {
		errs = append(errs, "content.monsters_dir must not be empty")
	}
	if c.PartyFile == "" {
		errs = append(errs, "content.party_file must not be empty")
	}
	if c.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("content.script_instruction_limit must be >= 0, got %d", c.ScriptInstructionLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with CRAWL_ prefix
	v.SetEnvPrefix("CRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
// Defaults are applied for any key v does not set.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "crawl")
	v.SetDefault("database.password", "crawl")
	v.SetDefault("database.name", "crawl")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("combat.max_front_row", 3)
	v.SetDefault("combat.max_back_row", 3)
	v.SetDefault("combat.flee_chance", 0.5)
	v.SetDefault("combat.instant_kill_chance", 0.05)
	v.SetDefault("combat.crit_double_threshold", 18)
	v.SetDefault("combat.ranged_preference_chance", 0.3)
	v.SetDefault("combat.area_attack_min_targets", 3)
	v.SetDefault("combat.seed", 0)

	v.SetDefault("content.monsters_dir", "content/monsters")
	v.SetDefault("content.treasure_file", "content/treasure.yaml")
	v.SetDefault("content.spells_dir", "content/spells")
	v.SetDefault("content.equipment_dir", "content/equipment")
	v.SetDefault("content.items_dir", "content/items")
	v.SetDefault("content.scripts_dir", "content/scripts")
	v.SetDefault("content.party_file", "content/party.yaml")
	v.SetDefault("content.script_instruction_limit", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}
