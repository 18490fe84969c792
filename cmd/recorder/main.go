package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"xrpl-uplink/internal/observability"
	"xrpl-uplink/internal/recorder"
	"xrpl-uplink/internal/storage"
	chstore "xrpl-uplink/internal/storage/clickhouse"
	"xrpl-uplink/internal/storage/memory"
	"xrpl-uplink/internal/storage/migrations"
	pgstore "xrpl-uplink/internal/storage/postgres"
	"xrpl-uplink/internal/xrpl"
)

func main() {
	endpoints := flag.String("endpoints", xrpl.DefaultEndpoint, "Comma-separated XRPL WebSocket endpoints")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for ledger closes")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for health samples")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	assumeOffline := flag.Duration("assume-offline-after", 15*time.Second, "Ledger silence window before forcing a reconnect")
	metricsAddr := flag.String("metrics-addr", ":9091", "Prometheus metrics HTTP address (empty to disable)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Str("component", "recorder").Logger()

	metrics := observability.NewMetrics("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			logger.Info().Str("addr", *metricsAddr).Msg("starting metrics server")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerStore, healthStore, closeStores, err := buildStores(ctx, logger, *useMemory, *postgresDSN, *clickhouseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("build stores")
	}
	defer closeStores()

	client, err := xrpl.New(splitEndpoints(*endpoints),
		xrpl.WithConfig(xrpl.Config{AssumeOfflineAfter: *assumeOffline}),
		xrpl.WithLogger(logger),
		xrpl.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("build client")
	}

	rec := recorder.New(recorder.Options{
		LedgerStore: ledgerStore,
		HealthStore: healthStore,
		Logger:      logger,
		Metrics:     metrics,
	})
	rec.Attach(client)

	if err := client.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}

	// Two-signal shutdown: the first asks nicely, the second forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	err = rec.Run(ctx)
	if closeErr := client.Close(); closeErr != nil && !errors.Is(closeErr, xrpl.ErrClosed) {
		logger.Error().Err(closeErr).Msg("close client")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("recorder stopped")
	}
	logger.Info().Msg("recorder stopped")
}

// buildStores wires storage: in-memory for local runs, PostgreSQL for
// ledger closes and ClickHouse for health samples otherwise. A store with
// no DSN is simply absent and its events are skipped.
func buildStores(ctx context.Context, logger zerolog.Logger, useMemory bool, postgresDSN, clickhouseDSN string) (storage.LedgerCloseStore, storage.HealthSampleStore, func(), error) {
	if useMemory {
		logger.Info().Msg("using in-memory storage")
		return memory.NewLedgerCloseStore(), memory.NewHealthSampleStore(), func() {}, nil
	}

	var cleanups []func()
	closeAll := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	var ledgerStore storage.LedgerCloseStore
	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, closeAll, err
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, nil, closeAll, err
		}
		ledgerStore = pgstore.NewLedgerCloseStore(pool)
		logger.Info().Msg("postgres ledger close store ready")
	}

	var healthStore storage.HealthSampleStore
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, closeAll, err
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, nil, closeAll, err
		}
		healthStore = chstore.NewHealthSampleStore(conn)
		logger.Info().Msg("clickhouse health sample store ready")
	}

	if ledgerStore == nil && healthStore == nil {
		return nil, nil, closeAll, errors.New("no storage configured: pass -postgres-dsn, -clickhouse-dsn or -use-memory")
	}
	return ledgerStore, healthStore, closeAll, nil
}

func splitEndpoints(s string) []string {
	var result []string
	for _, e := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
