package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nifty-signal/config"
	"nifty-signal/internal/fetcher"
	"nifty-signal/internal/logger"
	"nifty-signal/internal/markethours"
	"nifty-signal/internal/metrics"
	"nifty-signal/internal/notification"
	"nifty-signal/internal/session"
	redisstore "nifty-signal/internal/store/redis"
	"nifty-signal/pkg/smartconnect"
)

func main() {
	config.LoadDotEnv()

	dumpDay := flag.String("dump-session", "", "Print the journaled bars of an IST day (YYYY-MM-DD) as JSON lines and exit")
	dbPath := flag.String("db", os.Getenv("SQLITE_PATH"), "Path to the SQLite journal (for -dump-session)")
	instrument := flag.String("instrument", firstNonEmpty(os.Getenv("INSTRUMENT"), "NIFTY"), "Instrument to dump")
	flag.Parse()

	if *dumpDay != "" {
		n, err := dumpSession(context.Background(), os.Stdout, *dbPath, *instrument, *dumpDay)
		if err != nil {
			log.Fatalf("[signalbot] %v", err)
		}
		log.Printf("[signalbot] dumped %d bars", n)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[signalbot] %v", err)
	}

	logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))
	slog.Info("[signalbot] starting",
		slog.String("instrument", cfg.Instrument),
		slog.String("source", cfg.FetchSource),
		slog.Duration("poll", cfg.PollInterval),
		slog.Duration("idle", cfg.IdleInterval),
	)

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("[signalbot] shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, health)
		metricsSrv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsSrv.Stop(shutdownCtx)
		}()
	}
	pings := map[string]metrics.PingFunc{}

	// ---- Notifiers: Telegram is primary, the rest best-effort ----
	telegram, err := notification.NewTelegramNotifier(cfg.BotToken, cfg.ChatID)
	if err != nil {
		log.Fatalf("[signalbot] telegram init failed: %v", err)
	}
	verifyCtx, verifyCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := telegram.Verify(verifyCtx); err != nil {
		slog.Warn("[signalbot] telegram not reachable, continuing", slog.Any("error", err))
	} else {
		slog.Info("[signalbot] telegram bot ready", slog.String("bot", telegram.Username()))
	}
	verifyCancel()
	secondaries := []notification.Notifier{notification.NewLogNotifier()}

	if cfg.WebhookURL != "" {
		secondaries = append(secondaries, notification.NewWebhookNotifier(cfg.WebhookURL))
		slog.Info("[signalbot] webhook notifier enabled")
	}

	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			slog.Warn("[signalbot] redis init failed, continuing without redis", slog.Any("error", err))
		} else {
			defer pub.Close()
			pub.Breaker().OnStateChange = func(from, to redisstore.State) {
				slog.Warn("[redis] circuit breaker transition",
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
				prom.RedisBreaker.Set(float64(to))
			}
			pings["redis"] = func(ctx context.Context) error { return pub.Client().Ping(ctx).Err() }
			secondaries = append(secondaries, notification.NewRedisNotifier(pub, cfg.RedisChannel))
			slog.Info("[signalbot] redis publisher enabled", slog.String("channel", cfg.RedisChannel))
		}
	}

	gate := notification.NewGate(notification.NewMulti(telegram, secondaries...))
	gate.OnSent = prom.NotifySent.Inc
	gate.OnFailed = prom.NotifyFailed.Inc

	// ---- Optional session journal ----
	var sink session.BarSink
	if cfg.SQLitePath != "" {
		journal, err := openJournal(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[signalbot] sqlite init failed: %v", err)
		}
		defer journal.Close()

		// Keep a week of session bars.
		cutoff := time.Now().In(markethours.IST).AddDate(0, 0, -7)
		if n, err := journal.PruneBefore(ctx, cutoff); err != nil {
			slog.Warn("[sqlite] prune failed", slog.Any("error", err))
		} else if n > 0 {
			slog.Info("[sqlite] pruned old bars", slog.Int64("rows", n))
		}

		pings["sqlite"] = journal.DB().PingContext
		sink = journal
		slog.Info("[signalbot] sqlite journal ready", slog.String("path", cfg.SQLitePath))
	}

	health.StartLivenessChecker(ctx, pings, 10*time.Second)

	// ---- Series source ----
	var src fetcher.Fetcher
	switch cfg.FetchSource {
	case config.SourceAngel:
		sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.AngelAPIKey})
		src = fetcher.NewAngelFetcher(fetcher.AngelConfig{
			ClientCode:  cfg.AngelClientCode,
			Password:    cfg.AngelPassword,
			TOTPSecret:  cfg.AngelTOTPSecret,
			SymbolToken: cfg.AngelSymbolToken,
		}, sc)
		defer func() {
			if !sc.HasSession() {
				return
			}
			logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer logoutCancel()
			if _, err := sc.TerminateSession(logoutCtx, cfg.AngelClientCode); err != nil {
				slog.Warn("[signalbot] angel logout failed", slog.Any("error", err))
			}
		}()
	default:
		src = fetcher.NewYahooFetcher(fetcher.YahooConfig{Symbol: cfg.Symbol})
	}

	loop := session.New(session.Config{
		Instrument:   cfg.Instrument,
		PollInterval: cfg.PollInterval,
		IdleInterval: cfg.IdleInterval,
		Hours:        markethours.Gate{SkipHolidays: cfg.SkipHolidays},
	}, session.Deps{
		Fetcher: src,
		Gate:    gate,
		Sink:    sink,
		Metrics: prom,
		Health:  health,
	})

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("[signalbot] loop exited", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("[signalbot] shutdown complete")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
