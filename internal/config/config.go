// Package config loads the arena server configuration with Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLASSQUEST_HTTP_PORT.
const EnvPrefix = "CLASSQUEST"

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// Mode is "standalone" (in-process fan-out) or "cluster" (Redis fan-out).
	Mode string `mapstructure:"mode"`
	// InstanceID tags log lines and Redis traffic of this process.
	InstanceID string `mapstructure:"instance_id"`
}

// Clustered reports whether events fan out through Redis.
func (s ServerConfig) Clustered() bool { return s.Mode == "cluster" }

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
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds the pub/sub connection used in cluster mode.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ChannelPrefix is joined with the encounter id to name a channel.
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// HTTPConfig holds the REST and websocket listener settings.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists websocket origins; empty accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GRPCConfig holds the health service listener.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// HealthInterval is how often the database is pinged for the health status.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Addr returns the "host:port" listen address.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ArenaConfig holds the game rules and phase timers.
type ArenaConfig struct {
	// Phase timers call force-advance when they fire; zero disables a timer.
	QuestionTimeout time.Duration `mapstructure:"question_timeout"`
	MoveTimeout     time.Duration `mapstructure:"move_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`

	ManaRegen             int `mapstructure:"mana_regen"`
	XPPerRound            int `mapstructure:"xp_per_round"`
	GoldPerRound          int `mapstructure:"gold_per_round"`
	ConsolationXPPerRound int `mapstructure:"consolation_xp_per_round"`
	MinConsolationXP      int `mapstructure:"min_consolation_xp"`
	MaxSaveAttempts       int `mapstructure:"max_save_attempts"`

	// ScriptInstructionLimit bounds every Lua answer checker.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`

	// BestiaryPath and ClassesPath override the embedded content when set.
	BestiaryPath string `mapstructure:"bestiary_path"`
	ClassesPath  string `mapstructure:"classes_path"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Arena    ArenaConfig    `mapstructure:"arena"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateDatabase(c.Database),
		validateRedis(c.Server, c.Redis),
		validatePort("http.port", c.HTTP.Port),
		validatePort("grpc.port", c.GRPC.Port),
		validateLogging(c.Logging),
		validateArena(c.Arena),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	validModes := map[string]bool{"standalone": true, "cluster": true}
	if !validModes[s.Mode] {
		return fmt.Errorf("server.mode must be one of [standalone, cluster], got %q", s.Mode)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if err := validatePort("database.port", d.Port); err != nil {
		errs = append(errs, err.Error())
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
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be between 0 and database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(s ServerConfig, r RedisConfig) error {
	if !s.Clustered() {
		return nil
	}
	if r.Addr == "" {
		return errors.New("redis.addr must not be empty in cluster mode")
	}
	if r.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", r.DB)
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
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

func validateArena(a ArenaConfig) error {
	var errs []string
	if a.QuestionTimeout < 0 || a.MoveTimeout < 0 || a.ActionTimeout < 0 {
		errs = append(errs, "arena timeouts must not be negative")
	}
	if a.ManaRegen < 0 {
		errs = append(errs, fmt.Sprintf("arena.mana_regen must be >= 0, got %d", a.ManaRegen))
	}
	if a.XPPerRound < 0 || a.GoldPerRound < 0 || a.ConsolationXPPerRound < 0 || a.MinConsolationXP < 0 {
		errs = append(errs, "arena reward amounts must not be negative")
	}
	if a.MaxSaveAttempts < 1 {
		errs = append(errs, fmt.Sprintf("arena.max_save_attempts must be >= 1, got %d", a.MaxSaveAttempts))
	}
	if a.ScriptInstructionLimit < 1 {
		errs = append(errs, fmt.Sprintf("arena.script_instruction_limit must be >= 1, got %d", a.ScriptInstructionLimit))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
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
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.instance_id", "arena-1")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "classquest")
	v.SetDefault("database.password", "classquest")
	v.SetDefault("database.name", "classquest")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "classquest:encounter:")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.health_interval", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("arena.question_timeout", "0s")
	v.SetDefault("arena.move_timeout", "0s")
	v.SetDefault("arena.action_timeout", "0s")
	v.SetDefault("arena.mana_regen", 5)
	v.SetDefault("arena.xp_per_round", 10)
	v.SetDefault("arena.gold_per_round", 5)
	v.SetDefault("arena.consolation_xp_per_round", 10)
	v.SetDefault("arena.min_consolation_xp", 10)
	v.SetDefault("arena.max_save_attempts", 3)
	v.SetDefault("arena.script_instruction_limit", 100000)
}
