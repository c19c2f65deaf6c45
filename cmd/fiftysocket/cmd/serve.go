package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/fiftysocket/internal/config"
	"github.com/luciancaetano/fiftysocket/internal/engine"
	"github.com/luciancaetano/fiftysocket/internal/logging"
	"github.com/luciancaetano/fiftysocket/internal/supervisor"
	"github.com/luciancaetano/fiftysocket/internal/websocket"
)

type serveOptions struct {
	configPath string
	envFile    string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Phoenix V2 test server",
		Long: `Run the Phoenix V2 test server until interrupted.

Configuration is read from defaults, then the YAML file given by --config
(or CONFIG_PATH, config.yaml, config.yml), then the environment. PORT,
ALLOWED_PATHS, ALLOWED_ORIGINS, LOG_LEVEL and friends override the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "load environment variables from this file (default .env if present)")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logging.Init(cfg.LoggingOptions())
	cfg.LogSummary(logging.Component("config"))

	eng := engine.New()
	server := websocket.New(serverConfig(cfg, eng))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddProtocolService(supervisor.NewEngineService(eng))
	tree.AddAPIService(supervisor.NewTransportService(server, cfg.Server.ShutdownTimeout))

	logBanner(cfg)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Err(err).Msg("supervisor tree stopped")
		return fmt.Errorf("server stopped: %w", err)
	}

	logging.Info().Msg("shutdown complete")
	return nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. With an empty path a missing .env is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func serverConfig(cfg *config.Config, eng *engine.ProtocolServer) *websocket.ServerConfig {
	rateLimit := websocket.NoRateLimit()
	if cfg.RateLimit.Enabled {
		rateLimit = &websocket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimit.MessagesPerSecond),
			Burst:             cfg.RateLimit.Burst,
			Enabled:           true,
		}
	}

	checkOrigin := websocket.AllOrigins()
	if !cfg.AllowsAnyOrigin() {
		checkOrigin = websocket.AllowOrigins(cfg.Server.AllowedOrigins)
	}

	return &websocket.ServerConfig{
		Addr:             cfg.Addr(),
		Paths:            cfg.Server.Paths,
		RateLimitConfig:  rateLimit,
		CheckOrigin:      checkOrigin,
		Engine:           eng,
		MaxMessageSize:   cfg.Server.MaxMessageSize,
		UpgradeRateLimit: cfg.Server.UpgradeRateLimit,
		CORSOrigins:      cfg.Server.CORSOrigins,
		MetricsEnabled:   cfg.Server.MetricsEnabled,
	}
}

func logBanner(cfg *config.Config) {
	rule := strings.Repeat("=", 56)
	logging.Info().Msg(rule)
	logging.Info().Msg("  Fifty Socket Test Server (Phoenix V2 Protocol)")
	logging.Info().Msgf("  Listening on port %d", cfg.Server.Port)
	logging.Info().Msgf("  WebSocket paths: %s", strings.Join(cfg.Server.Paths, ", "))
	logging.Info().Msgf("  Health check:    http://localhost:%d/health", cfg.Server.Port)
	logging.Info().Msg(rule)
}
