package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apiodactyl/apiodactyl/internal/server"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

const banner = `
    _   ___ ___ ___  ___   _   ___ _______   ___
   /_\ | _ \_ _/ _ \|   \ /_\ / __|_   _\ \ / / |
  / _ \|  _/| | (_) | |) / _ \ (__  | |  \ V /| |__
 /_/ \_\_| |___\___/|___/_/ \_\___| |_|   |_| |____|
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the apiodactyl API server",
		Long: `Start the HTTP server that validates bearer API keys and exposes key administration.

On startup an admin key is created from the configured admin token when the store
holds no admin key yet. Startup fails if no admin key exists and none can be created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, dev)
	slog.SetDefault(logger)

	// 1. Key store
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("key store initialized", "driver", st.Driver())

	// 2. Metrics registry shared by the service and the HTTP layer
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. Auth service
	authSvc := newAuthService(cfg, st, logger, service.WithMetrics(service.NewMetrics(reg)))

	// 4. Admin bootstrap
	if err := authSvc.EnsureAdminExists(context.Background(), cfg.Auth.AdminToken); err != nil {
		authSvc.Close()
		var bootErr *service.BootstrapError
		if errors.As(err, &bootErr) {
			return fmt.Errorf("%w (set APIODACTYL_ADMIN_TOKEN or run 'apiodactyl admin bootstrap')", err)
		}
		return err
	}

	// 5. HTTP server
	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
		CORSOrigins:     cfg.Server.CORS.Origins,
		SweepInterval:   cfg.Auth.SweepIntervalDuration(),
		Version:         appVersion,
	}
	srv := server.New(srvCfg, st, authSvc, reg, logger)

	fmt.Printf("→ Apiodactyl %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Auth API:   http://%s:%d/api/v1/auth\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Cache TTL:  %s\n", cfg.Auth.CacheTTLDuration())
	fmt.Println()

	return srv.ListenAndServe()
}
