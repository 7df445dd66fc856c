package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/apiodactyl/apiodactyl/internal/store"
)

// EnvPrefix prefixes every environment variable override, e.g.
// APIODACTYL_SERVER_PORT.
const EnvPrefix = "APIODACTYL"

// adminTokenEnv lists the variables the bootstrap admin token is read from,
// in priority order. BEARO_API_TOKEN is accepted for existing deployments.
var adminTokenEnv = []string{"APIODACTYL_AUTH_ADMIN_TOKEN", "APIODACTYL_ADMIN_TOKEN", "BEARO_API_TOKEN"}

// Config represents the top-level apiodactyl configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	MCP     MCPConfig     `yaml:"mcp" mapstructure:"mcp"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host" mapstructure:"host"`
	Port            int        `yaml:"port" mapstructure:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// StoreConfig selects and tunes the key store database.
type StoreConfig struct {
	Driver  string     `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, mysql or sqlserver
	DSN     string     `yaml:"dsn" mapstructure:"dsn"`
	DataDir string     `yaml:"data_dir" mapstructure:"data_dir"`
	Pool    PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig controls the connection pool for networked drivers.
type PoolConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// AuthConfig controls API key validation.
type AuthConfig struct {
	// AdminToken bootstraps the first admin key. Prefer setting it through
	// APIODACTYL_ADMIN_TOKEN over writing it to a file.
	AdminToken      string `yaml:"admin_token" mapstructure:"admin_token"`
	CacheTTL        string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	SweepInterval   string `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	LastUsedQueue   int    `yaml:"last_used_queue" mapstructure:"last_used_queue"`
	LastUsedTimeout string `yaml:"last_used_timeout" mapstructure:"last_used_timeout"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Addr      string `yaml:"addr" mapstructure:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	pool := store.DefaultPool()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Pool: PoolConfig{
				MaxOpenConns:    pool.MaxOpenConns,
				MaxIdleConns:    pool.MaxIdleConns,
				ConnMaxLifetime: pool.ConnMaxLifetime.String(),
				ConnMaxIdleTime: pool.ConnMaxIdleTime.String(),
			},
		},
		Auth: AuthConfig{
			CacheTTL:        "5m",
			SweepInterval:   "1m",
			LastUsedQueue:   1024,
			LastUsedTimeout: "5s",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:3001",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default value and environment binding on v so
// that APIODACTYL_* variables override keys even when no config file exists.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("store.pool.max_open_conns", d.Store.Pool.MaxOpenConns)
	v.SetDefault("store.pool.max_idle_conns", d.Store.Pool.MaxIdleConns)
	v.SetDefault("store.pool.conn_max_lifetime", d.Store.Pool.ConnMaxLifetime)
	v.SetDefault("store.pool.conn_max_idle_time", d.Store.Pool.ConnMaxIdleTime)

	v.SetDefault("auth.admin_token", d.Auth.AdminToken)
	v.SetDefault("auth.cache_ttl", d.Auth.CacheTTL)
	v.SetDefault("auth.sweep_interval", d.Auth.SweepInterval)
	v.SetDefault("auth.last_used_queue", d.Auth.LastUsedQueue)
	v.SetDefault("auth.last_used_timeout", d.Auth.LastUsedTimeout)

	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv(append([]string{"auth.admin_token"}, adminTokenEnv...)...)
}

// Load decodes the effective configuration from v and validates it.
// SetDefaults must have been called on v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to a YAML file. The admin
// token is left empty so secrets never land in the file by default.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	header := "# apiodactyl configuration\n" +
		"# Every key can be overridden with an APIODACTYL_ environment variable,\n" +
		"# e.g. APIODACTYL_SERVER_PORT=9090. Set the bootstrap admin key with\n" +
		"# APIODACTYL_ADMIN_TOKEN rather than in this file.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0600)
}

// Marshal renders cfg as YAML with the admin token redacted.
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Auth.AdminToken != "" {
		redacted.Auth.AdminToken = "********"
	}
	return yaml.Marshal(&redacted)
}

// Validate checks driver names, enumerations and every duration field.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	known := c.Store.Driver == ""
	for _, d := range store.Drivers() {
		if c.Store.Driver == d {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("store.driver: unsupported driver %q (supported: %s)",
			c.Store.Driver, strings.Join(store.Drivers(), ", ")))
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "" && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn: required for driver %q", c.Store.Driver))
	}

	for key, val := range map[string]string{
		"server.shutdown_timeout":       c.Server.ShutdownTimeout,
		"store.pool.conn_max_lifetime":  c.Store.Pool.ConnMaxLifetime,
		"store.pool.conn_max_idle_time": c.Store.Pool.ConnMaxIdleTime,
		"auth.cache_ttl":                c.Auth.CacheTTL,
		"auth.sweep_interval":           c.Auth.SweepInterval,
		"auth.last_used_timeout":        c.Auth.LastUsedTimeout,
	} {
		if val == "" {
			continue
		}
		if d, err := time.ParseDuration(val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", key))
		}
	}

	switch c.MCP.Transport {
	case "", "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport: must be stdio or http, got %q", c.MCP.Transport))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// StoreOptions converts the store section into store.Open options. An empty
// data dir resolves to ~/.apiodactyl.
func (c *Config) StoreOptions() store.Config {
	dataDir := c.Store.DataDir
	if dataDir == "" && (c.Store.Driver == "sqlite" || c.Store.Driver == "") {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".apiodactyl")
	}
	return store.Config{
		Driver:  c.Store.Driver,
		DSN:     c.Store.DSN,
		DataDir: dataDir,
		Pool: store.PoolConfig{
			MaxOpenConns:    c.Store.Pool.MaxOpenConns,
			MaxIdleConns:    c.Store.Pool.MaxIdleConns,
			ConnMaxLifetime: duration(c.Store.Pool.ConnMaxLifetime, 0),
			ConnMaxIdleTime: duration(c.Store.Pool.ConnMaxIdleTime, 0),
		},
	}
}

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return duration(s.ShutdownTimeout, 30*time.Second)
}

// CacheTTLDuration returns the parsed cache freshness window.
func (a AuthConfig) CacheTTLDuration() time.Duration {
	return duration(a.CacheTTL, 5*time.Minute)
}

// SweepIntervalDuration returns the parsed cache sweep interval.
func (a AuthConfig) SweepIntervalDuration() time.Duration {
	return duration(a.SweepInterval, time.Minute)
}

// LastUsedTimeoutDuration returns the parsed per-update timeout.
func (a AuthConfig) LastUsedTimeoutDuration() time.Duration {
	return duration(a.LastUsedTimeout, 5*time.Second)
}

// duration parses s, returning def when s is empty or invalid. Validate
// reports invalid values before they get here.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
