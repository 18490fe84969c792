package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"xrpl-uplink/internal/observability"
	"xrpl-uplink/internal/xrpl"
)

// config is loaded from the environment (and an optional .env file).
type config struct {
	Endpoints             []string      `env:"XRPL_ENDPOINTS" envSeparator:"," envDefault:"wss://xrplcluster.com"`
	SubscribeStreams      []string      `env:"XRPL_SUBSCRIBE_STREAMS" envSeparator:","`
	ConnectAttemptTimeout time.Duration `env:"XRPL_CONNECT_ATTEMPT_TIMEOUT" envDefault:"3s"`
	AssumeOfflineAfter    time.Duration `env:"XRPL_ASSUME_OFFLINE_AFTER" envDefault:"15s"`
	MaxConnectionAttempts int           `env:"XRPL_MAX_CONNECTION_ATTEMPTS" envDefault:"0"`
	StateInterval         time.Duration `env:"MONITOR_STATE_INTERVAL" envDefault:"10s"`
	MetricsAddr           string        `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		bootstrapLogger := zerolog.New(os.Stderr)
		bootstrapLogger.Fatal().Err(err).Msg("parse configuration")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Str("component", "monitor").Logger()

	metrics := observability.NewMetrics("")
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	client, err := xrpl.New(cfg.Endpoints,
		xrpl.WithConfig(xrpl.Config{
			ConnectAttemptTimeout: cfg.ConnectAttemptTimeout,
			AssumeOfflineAfter:    cfg.AssumeOfflineAfter,
			MaxConnectionAttempts: cfg.MaxConnectionAttempts,
		}),
		xrpl.WithLogger(logger),
		xrpl.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("build client")
	}

	client.OnEvent(func(ev xrpl.Event) {
		switch ev.Type {
		case xrpl.EventOnline:
			logger.Info().Msg("uplink online")
		case xrpl.EventOffline:
			logger.Warn().Msg("uplink offline")
		case xrpl.EventNodeSwitch:
			logger.Warn().Str("endpoint", ev.Endpoint).Msg("switched node")
		case xrpl.EventRound:
			logger.Warn().Msg("wrapped around the endpoint list")
		case xrpl.EventLedger:
			logger.Info().
				Uint64("ledger", ev.Ledger.LedgerIndex).
				Uint64("txns", ev.Ledger.TxnCount).
				Msg("ledger closed")
		case xrpl.EventValidation:
			logger.Debug().Str("key_type", ev.KeyType).Msg("validation received")
		case xrpl.EventError:
			logger.Error().Err(ev.Err).Msg("uplink error")
		}
	})

	if err := client.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyCtx, readyCancel := context.WithTimeout(ctx, 60*time.Second)
	if err := client.Ready(readyCtx); err != nil {
		logger.Warn().Err(err).Msg("uplink not ready yet, continuing to watch")
	}
	readyCancel()

	for _, stream := range cfg.SubscribeStreams {
		stream = strings.TrimSpace(stream)
		if stream == "" {
			continue
		}
		_, err := client.SendAsync(map[string]interface{}{
			"command": "subscribe",
			"streams": []string{stream},
		}, xrpl.SendOptions{})
		if err != nil {
			logger.Error().Err(err).Str("stream", stream).Msg("subscribe")
			continue
		}
		logger.Info().Str("stream", stream).Msg("subscribed")
	}

	ticker := time.NewTicker(cfg.StateInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close client")
			}
			return
		case <-ticker.C:
			st := client.State()
			logger.Info().
				Bool("online", st.Online).
				Uint64("ledger_last", st.Ledger.Last).
				Uint64("ledger_count", st.Ledger.Count).
				Float64("latency_ms", st.Latency.LastMs).
				Float64("fee_drops", st.Fee.LastDrops).
				Float64("sec_last_contact", st.SecLastContact).
				Str("server", st.Server.Version).
				Str("uri", st.Server.URI).
				Msg("state")
		}
	}
}
