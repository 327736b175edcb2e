package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/HieraChain-Simulator/api"
	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/config"
	"github.com/VanDung-dev/HieraChain-Simulator/monitoring"
	"github.com/VanDung-dev/HieraChain-Simulator/network"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds serve flags.
type ServeOptions struct {
	NoFixture     bool
	IngestionPath string
}

// NewServeCommand runs every server until SIGINT or SIGTERM.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator with its RPC, faucet, control, metrics and feed servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if opts.NoFixture {
				cfg.Fixture.Enabled = false
			}
			if opts.IngestionPath != "" {
				cfg.Ingestion.Path = opts.IngestionPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&opts.NoFixture, "no-fixture", false, "start from an empty ledger")
	cmd.Flags().StringVar(&opts.IngestionPath, "ingestion-path", "", "SQLite file receiving every checkpoint")

	return cmd
}

// loadConfig resolves the config file, environment and global flags.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.FromFile(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// Serve creates a handle from cfg and serves it until ctx is done.
func Serve(ctx context.Context, cfg config.Config) error {
	h, err := bridge.CreateWithConfig(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = h.Destroy() }()

	log := bridge.InitDiagnostics(cfg.Log)
	api.SetLogger(log.Named("api"))
	network.SetLogger(log.Named("network"))

	metrics := monitoring.Default()

	feed := network.NewPublisher(cfg.Server.FeedAddr, 0, metrics)
	if err := feed.Start(); err != nil {
		return err
	}
	defer feed.Stop()
	if err := h.Subscribe(feed); err != nil {
		return err
	}

	auth := api.NewAuthenticator(cfg.Auth)
	if auth.IsEnabled() && cfg.Auth.Token == "" {
		log.Warn("generated RPC auth token", zap.String("token", auth.Token()))
	}
	frames := api.NewFrameServer(h, api.FrameServerConfig{
		Workers: cfg.Server.Workers,
		Auth:    auth,
		Metrics: metrics,
	})
	control := api.NewHTTPServer("control", cfg.Server.ControlAddr, api.NewControlRouter(h))
	faucet := api.NewHTTPServer("faucet", cfg.Server.FaucetAddr, api.NewFaucetRouter(h))
	metricsServer := monitoring.NewMetricsServer(cfg.Server.MetricsAddr, nil)

	if err := frames.StartAsync(cfg.Server.RPCAddr); err != nil {
		return err
	}
	defer frames.Stop()

	log.Info("simulator services",
		zap.String("rpc", "tcp://"+cfg.Server.RPCAddr),
		zap.String("faucet", "http://"+cfg.Server.FaucetAddr),
		zap.String("control", "http://"+cfg.Server.ControlAddr),
		zap.String("metrics", "http://"+cfg.Server.MetricsAddr+"/metrics"),
		zap.String("feed", cfg.Server.FeedAddr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(control.Start)
	g.Go(faucet.Start)
	g.Go(metricsServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		frames.Stop()
		var firstErr error
		for _, s := range []interface{ Shutdown(context.Context) error }{control, faucet, metricsServer} {
			if err := s.Shutdown(sctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("stopped")
	return nil
}
