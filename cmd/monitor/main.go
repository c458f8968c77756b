package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"PriceWatch/internal/collector"
	"PriceWatch/internal/config"
	"PriceWatch/internal/httpapi"
	"PriceWatch/internal/metrics"
	"PriceWatch/internal/notifier"
	"PriceWatch/internal/recorder"
	"PriceWatch/internal/scheduler"
	"PriceWatch/internal/sink"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] PriceWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "rest":
		fetcher = collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "mock":
		fetcher = collector.NewScriptedFetcher(collector.PriceStep(cfg.DataSource.MockPrice))
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", fetcher.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Status notifiers
	board := notifier.NewBoard()
	notifiers := notifier.Multi{notifier.NewLogNotifier(), board}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		notifiers = append(notifiers, tn)
		go tn.Run(ctx)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Init scheduler
	samples := sink.New()
	sched := scheduler.New(scheduler.Config{
		CooldownTicks: cfg.Schedule.CooldownTicks,
		FetchTimeout:  cfg.Schedule.FetchTimeout,
		RunOnStart:    *cfg.Schedule.RunOnStart,
	}, fetcher, samples, notifiers, rec, m)
	if err := sched.Start(cfg.DataSource.Symbol, cfg.Schedule.Period); err != nil {
		log.Fatalf("[FATAL] start scheduler: %v", err)
	}
	defer sched.Stop()

	// Read side
	srv := httpapi.New(cfg.HTTP.Addr, samples, sched, board, reg)
	srv.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	log.Println("[INFO] PriceWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Printf("[INFO] PriceWatch stopped after %d samples", samples.Len())
}
