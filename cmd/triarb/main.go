package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"triarb/internal/infrastructure/config"
	"triarb/internal/infrastructure/logger"
	"triarb/internal/infrastructure/svc"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml (empty = env and defaults only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Str("start_amount", cfg.Arbitrage.StartAmount.String()).
		Str("min_profit_percent", cfg.Arbitrage.MinProfitPercent.String()).
		Strs("anchors", cfg.Arbitrage.Anchors).
		Dur("interval", cfg.ScanInterval()).
		Msg("triarb started")

	if sc.Bot != nil {
		go func() {
			if err := sc.Bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("telegram bot exited")
			}
		}()
	}

	// 没有 Telegram 时只能自动开始扫描
	if cfg.Scan.AutoStart || sc.Bot == nil {
		if err := sc.Detector.Reload(ctx); err != nil {
			log.Error().Err(err).Msg("initial market load failed, scheduler will retry")
		}
		if err := sc.Scheduler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("scheduler start failed")
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
}
