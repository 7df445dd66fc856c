package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/apiodactyl/apiodactyl/internal/cache"
	"github.com/apiodactyl/apiodactyl/internal/config"
	"github.com/apiodactyl/apiodactyl/internal/service"
	"github.com/apiodactyl/apiodactyl/internal/store"
)

// loadConfig decodes the effective configuration: defaults, then the config
// file, then APIODACTYL_* environment variables, then bound flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the configured key store and applies migrations.
func openStore(cfg *config.Config) (*store.Store, error) {
	opts := cfg.StoreOptions()
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}
	return st, nil
}

// newAuthService wires an AuthService to st using the auth section of cfg.
func newAuthService(cfg *config.Config, st *store.Store, logger *slog.Logger, extra ...service.Option) *service.AuthService {
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithCache(cache.New(cache.WithTTL(cfg.Auth.CacheTTLDuration()))),
		service.WithLastUsedQueue(cfg.Auth.LastUsedQueue, cfg.Auth.LastUsedTimeoutDuration()),
	}
	return service.NewAuthService(st, append(opts, extra...)...)
}

// quietLogger is used by one-shot commands that print their own output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
