// Command demo is a small illustrative binary for the fsmrt runtime. It
// loads a YAML configuration file, opens the embedded-engine catalog,
// registers the basket Behavior used by the runtime's own test suite,
// drives a scripted sequence of signals to completion, then serves the
// read-only Query API over HTTP until terminated. It is purely
// illustrative; not part of the library's public contract.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalforge/fsmrt"
	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/config"
	"github.com/signalforge/fsmrt/internal/metrics"
	"github.com/signalforge/fsmrt/internal/restapi"
	"github.com/signalforge/fsmrt/internal/testfsm"
	"github.com/signalforge/fsmrt/internal/txn"
)

const basketClass = "Basket"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fsmrt-demo: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "fsmrt-demo",
		Short: "Run the fsmrt runtime demo",
		Long: "fsmrt-demo drives a new basket through a scripted sequence of signals\n" +
			"and then serves the read-only Query API until interrupted.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "./fsmrt-demo.yaml", "path to the demo's YAML configuration file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("dsn", cfg.DSN).Str("listen_addr", cfg.ListenAddr).Msg("configuration loaded")

	db, err := txn.OpenSQLite(cfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	basketBehavior := testfsm.New(basketClass, nil)
	collector := metrics.New()

	rt, err := fsmrt.New(
		fsmrt.WithBehaviorFactory(behavior.MapFactory{basketClass: basketBehavior}),
		fsmrt.WithConnectionFactory(txn.SQLiteFactory(db), txn.SQLiteQueryFactory(db)),
		fsmrt.WithStoreSignals(cfg.StoreSignals),
		fsmrt.WithRetryInterval(cfg.RetryInterval),
		fsmrt.WithMetrics(collector),
		fsmrt.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Create(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("recover pending signals: %w", err)
	}

	runScript(ctx, rt, logger)

	srv := restapi.NewServer(rt)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      restapi.NewRouter(srv, nil),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("query API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("query API server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("query API shutdown error")
	}

	logger.Info().Msg("fsmrt demo exited cleanly")
	return nil
}

// runScript drives a freshly minted basket through Create -> Change ->
// Checkout -> Payment, sleeping briefly between publishes since the drain
// scheduler processes asynchronously.
func runScript(ctx context.Context, rt *fsmrt.Runtime, logger zerolog.Logger) {
	basketID := uuid.NewString()
	logger.Info().Str("basket_id", basketID).Msg("starting scripted sequence")

	steps := []behavior.Event{
		behavior.Create,
		{Class: testfsm.ChangeClass, Value: testfsm.Change{Items: []string{"mug", "saucer"}}},
		{Class: testfsm.CheckoutClass},
		{Class: testfsm.PaymentClass},
	}

	for _, evt := range steps {
		if err := rt.Signal(ctx, basketClass, basketID, evt); err != nil {
			logger.Error().Err(err).Str("event", evt.Class).Msg("failed to publish scripted signal")
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	value, state, ok, err := rt.GetWithState(ctx, basketClass, basketID)
	if err != nil || !ok {
		logger.Warn().Err(err).Msg("scripted basket not found after drain")
		return
	}
	logger.Info().Interface("basket", value).Str("state", state.String()).Msg("scripted sequence complete")
}

// newLogger constructs a zerolog.Logger writing to stderr at the requested
// minimum level.
func newLogger(level string) zerolog.Logger {
	var l zerolog.Level
	switch level {
	case "debug":
		l = zerolog.DebugLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	default:
		l = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(l).With().Timestamp().Logger()
}
