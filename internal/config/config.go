// Package config provides Viper-based configuration loading for the combat server.
package config

import (
	"errors"
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

// StorageConfig selects where dead combatants and kill records are persisted.
type StorageConfig struct {
	// Driver is one of "postgres", "sqlite", or "none".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// GameServerConfig holds the combat gRPC listener settings.
type GameServerConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	// EffectsDir holds effect definition YAML files; empty disables loading.
	EffectsDir string `mapstructure:"effects_dir"`
	// LootDir holds loot table YAML files; empty disables loading.
	LootDir string `mapstructure:"loot_dir"`
	// ProcScriptDir holds Lua item procedure scripts; empty disables scripting.
	ProcScriptDir string `mapstructure:"proc_script_dir"`
	// ScriptInstructionLimit caps Lua opcodes per hook call; 0 uses the scripting default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// RoomsFile is the YAML exit graph used for fleeing; empty disables movement.
	RoomsFile string `mapstructure:"rooms_file"`
	// OutboxDepth is the number of undelivered messages kept per combatant.
	OutboxDepth int `mapstructure:"outbox_depth"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// CombatConfig holds the named numeric tunables of the combat core.
type CombatConfig struct {
	// RoundLength is the simulated duration of one full round.
	RoundLength time.Duration `mapstructure:"round_length"`
	// PhasesPerRound is how many pulses one round is divided into.
	PhasesPerRound int `mapstructure:"phases_per_round"`
	// MaxBonusAttacks caps proficiency-granted extra attacks.
	MaxBonusAttacks int `mapstructure:"max_bonus_attacks"`
	// MonkBonusCap caps the unarmed progression's extra attacks.
	MonkBonusCap int `mapstructure:"monk_bonus_cap"`
	// DamageCap is the largest amount a single hit may deal.
	DamageCap int `mapstructure:"damage_cap"`
	// DamageReductionCap caps flat damage reduction.
	DamageReductionCap int `mapstructure:"dr_cap"`
	// EnergyAbsorbCap caps flat per-type energy absorption.
	EnergyAbsorbCap int `mapstructure:"energy_absorb_cap"`
	// ConcealmentCap caps the concealment percentage.
	ConcealmentCap int `mapstructure:"concealment_cap"`
	// ArmorClassCap caps effective armor class.
	ArmorClassCap int `mapstructure:"ac_cap"`
	// StoneskinCap is the default per-hit absorption of a ward.
	StoneskinCap int `mapstructure:"stoneskin_cap"`
	// EpicWardCap is the per-hit absorption of epic wards.
	EpicWardCap int `mapstructure:"epic_ward_cap"`
	// AvertDeathCooldown is the simulated time before a defensive roll is usable again.
	AvertDeathCooldown time.Duration `mapstructure:"avert_death_cooldown"`
	// DeathThreshold is the health at or below which a player is dead.
	DeathThreshold int `mapstructure:"death_threshold"`
	// MaxExpGain caps experience from one kill.
	MaxExpGain int `mapstructure:"max_exp_gain"`
	// RecallRoom is where dead players reappear.
	RecallRoom string `mapstructure:"recall_room"`
}

// PhaseLength returns the simulated duration of one phase pulse.
//
// Precondition: PhasesPerRound > 0.
func (c CombatConfig) PhaseLength() time.Duration {
	return c.RoundLength / time.Duration(c.PhasesPerRound)
}

// DefaultCombat returns the documented default tunables.
//
// Postcondition: DefaultCombat().Validate() == nil.
func DefaultCombat() CombatConfig {
	return CombatConfig{
		RoundLength:        6 * time.Second,
		PhasesPerRound:     3,
		MaxBonusAttacks:    3,
		MonkBonusCap:       5,
		DamageCap:          999,
		DamageReductionCap: 20,
		EnergyAbsorbCap:    20,
		ConcealmentCap:     50,
		ArmorClassCap:      55,
		StoneskinCap:       16,
		EpicWardCap:        76,
		AvertDeathCooldown: time.Hour,
		DeathThreshold:     -11,
		MaxExpGain:         2000000,
		RecallRoom:         "start",
	}
}

// Validate checks the tunables' invariants.
//
// Postcondition: Returns nil iff every tunable is in range.
func (c CombatConfig) Validate() error {
	var errs []string
	if c.RoundLength <= 0 {
		errs = append(errs, "combat.round_length must be > 0")
	}
	if c.PhasesPerRound < 1 {
		errs = append(errs, fmt.Sprintf("combat.phases_per_round must be >= 1, got %d", c.PhasesPerRound))
	}
	if c.MaxBonusAttacks < 0 {
		errs = append(errs, fmt.Sprintf("combat.max_bonus_attacks must be >= 0, got %d", c.MaxBonusAttacks))
	}
	if c.MonkBonusCap < 0 {
		errs = append(errs, fmt.Sprintf("combat.monk_bonus_cap must be >= 0, got %d", c.MonkBonusCap))
	}
	if c.DamageCap < 1 {
		errs = append(errs, fmt.Sprintf("combat.damage_cap must be >= 1, got %d", c.DamageCap))
	}
	for name, v := range map[string]int{
		"combat.dr_cap":            c.DamageReductionCap,
		"combat.energy_absorb_cap": c.EnergyAbsorbCap,
		"combat.stoneskin_cap":     c.StoneskinCap,
		"combat.epic_ward_cap":     c.EpicWardCap,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0, got %d", name, v))
		}
	}
	if c.ConcealmentCap < 0 || c.ConcealmentCap > 100 {
		errs = append(errs, fmt.Sprintf("combat.concealment_cap must be 0-100, got %d", c.ConcealmentCap))
	}
	if c.ArmorClassCap < 10 {
		errs = append(errs, fmt.Sprintf("combat.ac_cap must be >= 10, got %d", c.ArmorClassCap))
	}
	if c.AvertDeathCooldown < 0 {
		errs = append(errs, "combat.avert_death_cooldown must not be negative")
	}
	if c.DeathThreshold >= 0 {
		errs = append(errs, fmt.Sprintf("combat.death_threshold must be < 0, got %d", c.DeathThreshold))
	}
	if c.MaxExpGain < 1 {
		errs = append(errs, fmt.Sprintf("combat.max_exp_gain must be >= 1, got %d", c.MaxExpGain))
	}
	if c.RecallRoom == "" {
		errs = append(errs, "combat.recall_room must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Config is the top-level application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Combat     CombatConfig     `mapstructure:"combat"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Driver == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTracing(c.Tracing); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGameServer(c.GameServer); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Combat.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	switch s.Driver {
	case "postgres", "none":
		return nil
	case "sqlite":
		if s.SQLitePath == "" {
			return errors.New("storage.sqlite_path must not be empty when storage.driver is sqlite")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver must be one of [postgres, sqlite, none], got %q", s.Driver)
	}
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

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if g.GRPCPort < 1 || g.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	if g.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("gameserver.script_instruction_limit must be >= 0, got %d", g.ScriptInstructionLimit))
	}
	if g.OutboxDepth < 1 {
		errs = append(errs, fmt.Sprintf("gameserver.outbox_depth must be >= 1, got %d", g.OutboxDepth))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if t.Enabled && t.ServiceName == "" {
		return errors.New("tracing.service_name must not be empty when tracing is enabled")
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

	// Environment variable overrides with SKIRMISH_ prefix
	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
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
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "skirmish")
	v.SetDefault("database.password", "skirmish")
	v.SetDefault("database.name", "skirmish")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.sqlite_path", "skirmish.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "combatd")

	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50061)
	v.SetDefault("gameserver.script_instruction_limit", 0)
	v.SetDefault("gameserver.outbox_depth", 256)

	d := DefaultCombat()
	v.SetDefault("combat.round_length", d.RoundLength)
	v.SetDefault("combat.phases_per_round", d.PhasesPerRound)
	v.SetDefault("combat.max_bonus_attacks", d.MaxBonusAttacks)
	v.SetDefault("combat.monk_bonus_cap", d.MonkBonusCap)
	v.SetDefault("combat.damage_cap", d.DamageCap)
	v.SetDefault("combat.dr_cap", d.DamageReductionCap)
	v.SetDefault("combat.energy_absorb_cap", d.EnergyAbsorbCap)
	v.SetDefault("combat.concealment_cap", d.ConcealmentCap)
	v.SetDefault("combat.ac_cap", d.ArmorClassCap)
	v.SetDefault("combat.stoneskin_cap", d.StoneskinCap)
	v.SetDefault("combat.epic_ward_cap", d.EpicWardCap)
	v.SetDefault("combat.avert_death_cooldown", d.AvertDeathCooldown)
	v.SetDefault("combat.death_threshold", d.DeathThreshold)
	v.SetDefault("combat.max_exp_gain", d.MaxExpGain)
	v.SetDefault("combat.recall_room", d.RecallRoom)
}
