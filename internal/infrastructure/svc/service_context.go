package svc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"triarb/internal/application/port"
	"triarb/internal/application/usecase/bot"
	"triarb/internal/application/usecase/detector"
	domainservice "triarb/internal/domain/service"
	"triarb/internal/infrastructure/config"
	"triarb/internal/infrastructure/exchange/bybit"
	"triarb/internal/infrastructure/pricesource"
	"triarb/internal/infrastructure/storage"
	"triarb/internal/infrastructure/storage/composite"
	pgrepo "triarb/internal/infrastructure/storage/postgres"
	redisrepo "triarb/internal/infrastructure/storage/redis"
	sqliterepo "triarb/internal/infrastructure/storage/sqlite"
	"triarb/internal/infrastructure/telegram"
	"triarb/internal/interfaces/console"
	tgnotify "triarb/internal/interfaces/telegram"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	apiClient   *bybit.APIClient
	market      *bybit.MarketClient
	account     *bybit.SpotAccountClient
	prices      port.PriceSource
	chat        *telegram.Client
	redisClient *redisclient.Client
	journal     port.OpportunityJournal

	// 输出端口
	Sink *composite.Sink

	// 应用业务组件（依赖基础设施）
	Detector  *detector.Detector
	Scheduler *detector.Scheduler
	Bot       *bot.Bot

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 初始化所有应用组件
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initExchange(); err != nil {
		return err
	}

	// 存储层失败只影响对应的下游，扫描照常进行
	sinks := []port.OpportunitySink{console.NewSink()}
	if err := sc.initializeStorage(); err != nil {
		log.Error().Err(err).Msg("storage disabled")
	}
	if sc.redisClient != nil {
		r := sc.Config.Storage.Redis
		sinks = append(sinks, redisrepo.New(sc.redisClient, r.Stream, r.Channel, r.MaxLen))
	}
	if sc.journal != nil {
		sinks = append(sinks, storage.NewJournalSink("journal", sc.journal))
	}

	if sc.Config.TelegramEnabled() {
		sc.chat = telegram.NewClient(sc.Config.Telegram.APIURL, sc.Config.Telegram.Token)
		if sc.Config.Telegram.NotifyOpportunities {
			sinks = append(sinks, tgnotify.NewNotifier(sc.chat, sc.Config.Telegram.AdminChatID))
		}
	}
	sc.Sink = composite.New(sinks...)

	arb := sc.Config.Arbitrage
	sc.Detector = detector.New(detector.Deps{
		Instruments:  sc.market,
		Prices:       sc.prices,
		Sink:         sc.Sink,
		Evaluator:    domainservice.NewEvaluator(),
		Anchors:      arb.Anchors,
		Workers:      arb.Workers,
		PriceTimeout: sc.Config.PriceTimeout(),
		Settings: detector.Settings{
			StartAmount:      arb.StartAmount,
			MinProfitPercent: arb.MinProfitPercent,
			FeeRate:          arb.FeeRate,
		},
	})
	sc.Scheduler = detector.NewScheduler(sc.Detector, sc.Config.ScanInterval(), sc.Config.InitialDelay())
	sc.closerChain = append(sc.closerChain, func() error {
		if err := sc.Scheduler.Stop(); err != nil && !errors.Is(err, detector.ErrNotRunning) {
			return err
		}
		return nil
	})

	if sc.chat != nil {
		deps := bot.Deps{
			Transport:      sc.chat,
			Detector:       sc.Detector,
			Scheduler:      sc.Scheduler,
			AdminChatID:    sc.Config.Telegram.AdminChatID,
			PollTimeoutSec: sc.Config.Telegram.PollTimeoutSec,
		}
		if sc.account != nil {
			deps.Balance = sc.account
		}
		sc.Bot = bot.New(deps)
	}

	log.Info().
		Str("prices", sc.prices.Name()).
		Int("sinks", sc.Sink.Len()).
		Bool("telegram", sc.Bot != nil).
		Msg("✓ All components initialized")
	return nil
}

// initExchange 初始化 Bybit 客户端与价格源
func (sc *ServiceContext) initExchange() error {
	by := sc.Config.Exchange.Bybit
	sc.apiClient = bybit.NewAPIClient(bybit.ClientOptions{
		BaseURL:      by.RestURL,
		APIKey:       by.APIKey,
		APISecret:    by.APISecret,
		RecvWindowMs: by.RecvWindowMs,
		Timeout:      sc.Config.PriceTimeout(),
	})
	sc.market = bybit.NewMarketClient(sc.apiClient)
	if by.APIKey != "" {
		sc.account = bybit.NewSpotAccountClient(sc.apiClient)
	}

	key := pricesource.Key(bybit.ExchangeName, by.PriceSource)
	if _, ok := pricesource.Get(key); !ok {
		return fmt.Errorf("%w: %s (have %v)", ErrUnknownPriceSource, key, pricesource.Keys())
	}
	prices, err := pricesource.New(key, pricesource.Options{
		RestURL:     by.RestURL,
		WsURL:       by.WsURL,
		HTTPTimeout: sc.Config.PriceTimeout(),
		MaxAge:      time.Duration(by.StreamMaxAgeSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("price source %s: %w", key, err)
	}
	sc.prices = prices
	if c, ok := prices.(io.Closer); ok {
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Str("source", prices.Name()).Msg("closing price source")
			return c.Close()
		})
	}

	log.Info().
		Str("rest", by.RestURL).
		Str("price_source", key).
		Bool("credentials", sc.account != nil).
		Msg("✓ Bybit initialized")
	return nil
}

// initializeStorage 初始化存储层 (Redis / SQLite / Postgres)，均为可选
func (sc *ServiceContext) initializeStorage() error {
	st := sc.Config.Storage
	var errs []error

	if st.Redis.Addr != "" {
		if err := sc.initRedis(); err != nil {
			errs = append(errs, fmt.Errorf("redis initialization failed: %w", err))
		}
	}

	// 流水只接一个：postgres 优先，否则 sqlite
	switch {
	case st.Postgres.DSN != "":
		if err := sc.initPostgres(); err != nil {
			errs = append(errs, fmt.Errorf("postgres initialization failed: %w", err))
		}
	case st.SQLite.Path != "":
		if err := sc.initSQLite(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite initialization failed: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, errors.Join(errs...))
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	r := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}
	sc.redisClient = rdb

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", r.Addr).
		Int("db", r.DB).
		Str("stream", r.Stream).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 流水库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.journal = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.Storage.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

// initPostgres 初始化 Postgres 流水库
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.journal = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// Journal 机会流水（未配置时为 nil）
func (sc *ServiceContext) Journal() port.OpportunityJournal {
	return sc.journal
}

// Close 关闭 ServiceContext 中的所有资源
// 按照相反的顺序关闭，调度器最先停
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
