package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sentinelops/arbiter/api"
	"github.com/sentinelops/arbiter/audit"
	"github.com/sentinelops/arbiter/config"
	"github.com/sentinelops/arbiter/correlate"
	"github.com/sentinelops/arbiter/dispatch"
	"github.com/sentinelops/arbiter/effector"
	"github.com/sentinelops/arbiter/engine"
	"github.com/sentinelops/arbiter/ledger"
	"github.com/sentinelops/arbiter/policy"
	"github.com/sentinelops/arbiter/types"
)

var (
	configPath string
	debug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the approval engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		// PolicyConfigError and friends are fatal before anything starts
		return err
	}

	// OTEL metrics through the prometheus exporter, served on /metrics
	promExporter, err := otelprom.New()
	if err != nil {
		return err
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter)))

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return err
	}

	trail, err := audit.Open(cfg.AuditDir)
	if err != nil {
		return err
	}
	defer func() { _ = trail.Close() }()

	ldg, err := ledger.New(cfg.StorageDir, trail)
	if err != nil {
		return err
	}
	defer func() { _ = ldg.Close() }()

	evaluator, err := policy.NewEvaluator(cfg.Policy)
	if err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	service, err := engine.NewService(
		ldg, trail, evaluator,
		dispatch.NewEngine(ldg, registry),
		correlate.NewEngine(correlate.Options{Window: cfg.CorrelationWindow}),
		engine.Options{PendingHorizon: cfg.PendingHorizon},
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(service).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Dur("pending_horizon", cfg.PendingHorizon).
		Float64("auto_execute", cfg.Policy.AutoExecute).
		Float64("auto_approve", cfg.Policy.AutoApprove).
		Float64("manual", cfg.Policy.Manual).
		Msg("arbiter starting")

	var g run.Group

	// HTTP server
	g.Add(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	// Expiry sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		return service.RunSweeper(sweepCtx, cfg.SweepInterval)
	}, func(error) {
		sweepCancel()
	})

	// Signal handling
	g.Add(run.SignalHandler(context.Background(), os.Interrupt))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(configPath)
}

// buildRegistry binds every known action type. Real response tooling
// plugs in here; the default wiring is log-only.
func buildRegistry() (*effector.Registry, error) {
	registry := effector.NewRegistry()
	logOnly := effector.NewLogEffector()

	for _, actionType := range []string{
		types.ActionIsolateHost,
		types.ActionBlockIP,
		types.ActionBlockDomain,
		types.ActionDisableAccount,
		types.ActionQuarantineFile,
		types.ActionRevokeSession,
	} {
		if err := registry.Register(actionType, logOnly); err != nil {
			return nil, err
		}
	}

	registry.Seal()
	return registry, nil
}
