package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ctfex.com/internal/api"
	"ctfex.com/internal/engine"
	"ctfex.com/internal/feed"
	"ctfex.com/internal/feed/ws"
	"ctfex.com/internal/ledger"
	"ctfex.com/internal/ledger/sqlstore"
	"ctfex.com/internal/market"
	"ctfex.com/pkg/config"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/orm"
	"ctfex.com/pkg/ratelimit"
	"ctfex.com/pkg/trace"
	"ctfex.com/pkg/xredis"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type App struct {
	cfg Config

	db       *gorm.DB
	rdb      *redis.Client
	store    ledger.Store
	registry *market.Registry
	engine   *engine.Engine
	broker   feed.Broker

	closers []func(context.Context) error
}

// New 只加载配置, 外部资源在 Start 里建
func New(configName string) (*App, error) {
	if configName == "" {
		configName = "ctfex"
	}
	a := &App{}
	if _, err := config.LoadAndWatch(configName, &a.cfg, a.onReload); err != nil {
		return nil, fmt.Errorf("load config %s: %w", configName, err)
	}
	if a.cfg.Name == "" {
		a.cfg.Name = configName
	}
	return a, nil
}

// 热更新只生效日志级别, 其余配置要重启
func (a *App) onReload() { logger.SetLevel(a.cfg.Log.Level) }

func (a *App) Config() Config { return a.cfg }

// Start builds every dependency in order. On error the ones already built
// are closed by Close.
func (a *App) Start(ctx context.Context) error {
	logger.InitWithFile(a.cfg.Name, a.cfg.Log.Level, a.cfg.Log.File)
	logger.Info(ctx, "service starting", zap.String("name", a.cfg.Name))

	shutdown, err := trace.InitTrace(a.cfg.Name, a.cfg.Otel.Exporter, a.cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("init trace: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	metrics.MustRegister()

	if err := a.startRedis(ctx); err != nil {
		return err
	}
	if err := a.startLedger(ctx); err != nil {
		return err
	}
	if err := a.startMarkets(ctx); err != nil {
		return err
	}
	if err := a.startFaucet(ctx); err != nil {
		return err
	}
	if err := a.startEngine(ctx); err != nil {
		return err
	}
	return a.startBroker()
}

// redis 只在 ledger 缓存或 wal 租约需要时连接
func (a *App) startRedis(ctx context.Context) error {
	if !a.cfg.Ledger.Cache.Enabled && a.cfg.Engine.LeaseKey == "" {
		return nil
	}
	rdb, err := xredis.NewRedis(ctx, &a.cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.rdb = rdb
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	return nil
}

func (a *App) startLedger(ctx context.Context) error {
	switch a.cfg.Ledger.Driver {
	case "", "memory":
		a.store = ledger.NewMemStore()
	case "mysql", "sqlite":
		dbCfg := a.cfg.Ledger.DB
		dbCfg.Driver = a.cfg.Ledger.Driver
		db, err := orm.Open(&dbCfg)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		st, err := sqlstore.New(db)
		if err != nil {
			return fmt.Errorf("init ledger tables: %w", err)
		}
		a.store = st
	default:
		return fmt.Errorf("unknown ledger driver %q", a.cfg.Ledger.Driver)
	}
	if a.cfg.Ledger.Cache.Enabled {
		a.store = ledger.NewCachedStore(a.store, a.rdb, a.cfg.Ledger.Cache.TTL)
	}
	logger.Info(ctx, "ledger ready", zap.String("driver", a.cfg.Ledger.Driver),
		zap.Bool("cache", a.cfg.Ledger.Cache.Enabled))
	return nil
}

func (a *App) startMarkets(ctx context.Context) error {
	authority := common.HexToAddress(a.cfg.MarketAuthority)
	var st market.Store
	if a.db != nil {
		gs, err := market.NewGormStore(a.db)
		if err != nil {
			return fmt.Errorf("init market table: %w", err)
		}
		st = gs
	}
	a.registry = market.NewRegistry(authority, st)
	if err := a.registry.Load(ctx); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	for _, mc := range a.cfg.Markets {
		m := market.New(common.HexToHash(mc.ConditionID), common.HexToAddress(mc.Collateral), mc.EndTime)
		err := a.registry.Register(ctx, authority, m)
		if err != nil && !errors.Is(err, market.ErrMarketExists) {
			return fmt.Errorf("register market %s: %w", mc.ConditionID, err)
		}
	}
	return nil
}

// 发钱只对内存账本做, 持久化账本重启会重复入账
func (a *App) startFaucet(ctx context.Context) error {
	if len(a.cfg.Faucet) == 0 {
		return nil
	}
	if a.db != nil {
		logger.Warn(ctx, "faucet ignored for persistent ledger", zap.Int("entries", len(a.cfg.Faucet)))
		return nil
	}
	admin, ok := a.store.(ledger.Admin)
	if !ok {
		return fmt.Errorf("ledger %T cannot credit", a.store)
	}
	exchange := common.HexToAddress(a.cfg.Engine.Exchange)
	for _, f := range a.cfg.Faucet {
		m, err := a.registry.Get(common.HexToHash(f.Market))
		if err != nil {
			return fmt.Errorf("faucet market %s: %w", f.Market, err)
		}
		var asset common.Hash
		switch strings.ToLower(f.Token) {
		case "cash", "":
			asset = m.CashAsset()
		case "yes":
			asset = m.YesToken
		case "no":
			asset = m.NoToken
		default:
			return fmt.Errorf("faucet token %q", f.Token)
		}
		owner := common.HexToAddress(f.Owner)
		if err := admin.Credit(ctx, owner, asset, f.Amount); err != nil {
			return err
		}
		if err := admin.SetApprovalForAll(ctx, owner, exchange, true); err != nil {
			return err
		}
	}
	logger.Info(ctx, "faucet applied", zap.Int("entries", len(a.cfg.Faucet)))
	return nil
}

func (a *App) startEngine(ctx context.Context) error {
	ec := a.cfg.Engine
	cfg := engine.EngineConfig{
		EventBusSize:    ec.EventBusSize,
		ActorCfg:        engine.ActorConfig{MailboxSize: ec.MailboxSize, BatchMax: ec.BatchMax},
		WALDir:          ec.WALDir,
		EnableCmdWAL:    ec.EnableCmdWAL,
		EnableOutbox:    ec.EnableOutbox,
		EnablePublisher: ec.EnablePublisher,
		PublisherPoll:   ec.PublisherPoll,
		Exchange:        common.HexToAddress(ec.Exchange),
		LeaseTTL:        ec.LeaseTTL,
	}
	switch ec.Codec {
	case "", "binary":
	case "json":
		cfg.CmdCodec = engine.JSONCmdCodec{Version: 1}
		cfg.EvCodec = engine.JSONEvCodec{Version: 1}
	default:
		return fmt.Errorf("unknown engine codec %q", ec.Codec)
	}
	if ec.LeaseKey != "" {
		cfg.Lease = xredis.NewLock(a.rdb, ec.LeaseKey)
	}

	a.engine = engine.NewEngine(cfg, a.store, a.registry)
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.engine.Stop()
		return nil
	})
	return nil
}

func (a *App) startBroker() error {
	if a.cfg.Nats.URL == "" {
		a.broker = feed.NewMemBroker(1024)
		return nil
	}
	b, err := feed.NewNatsBroker(a.cfg.Nats.URL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	a.broker = b
	a.closers = append(a.closers, func(context.Context) error { return b.Close() })
	return nil
}

// Run serves HTTP, metrics and the event relay until ctx ends or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(ctx, a.broker)
	srv := api.NewServer(ctx, api.Config{
		Service: a.cfg.Name,
		Addr:    a.cfg.HTTP.Addr,
		Rate:    a.cfg.HTTP.Rate,
		Burst:   a.cfg.HTTP.Burst,
		Metrics: true,
		Stream:  ws.NewServer(ctx, hub, a.cfg.Nats.SubjectPrefix),

		SignDomain: a.cfg.HTTP.SignDomain,
		SignSkew:   a.cfg.HTTP.SignSkew,
	}, a.engine, a.registry)
	g.Go(func() error { return serve(ctx, srv) })

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		msrv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serve(ctx, msrv) })
	}

	if a.db != nil || a.rdb != nil {
		g.Go(func() error {
			a.samplePools(ctx, 5*time.Second)
			return nil
		})
	}

	relay := feed.NewRelay(a.broker, ratelimit.NewManager(a.cfg.Name, ratelimit.Rule{}, nil), a.cfg.Nats.SubjectPrefix)
	g.Go(func() error {
		err := relay.Run(ctx, a.engine.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Info(ctx, "service running", zap.String("http", a.cfg.HTTP.Addr),
		zap.String("metrics", a.cfg.MetricsAddr))
	return g.Wait()
}

// samplePools 定时把 db / redis 连接池状态写进 gauge
func (a *App) samplePools(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if a.db != nil {
			if sqlDB, err := a.db.DB(); err == nil {
				st := sqlDB.Stats()
				metrics.DBPool.WithLabelValues("open").Set(float64(st.OpenConnections))
				metrics.DBPool.WithLabelValues("idle").Set(float64(st.Idle))
				metrics.DBPool.WithLabelValues("in_use").Set(float64(st.InUse))
				metrics.DBPool.WithLabelValues("wait_count").Set(float64(st.WaitCount))
				metrics.DBPool.WithLabelValues("wait_seconds").Set(st.WaitDuration.Seconds())
			}
		}
		if a.rdb != nil {
			st := a.rdb.PoolStats()
			metrics.RedisPool.WithLabelValues("total").Set(float64(st.TotalConns))
			metrics.RedisPool.WithLabelValues("idle").Set(float64(st.IdleConns))
			metrics.RedisPool.WithLabelValues("stale").Set(float64(st.StaleConns))
			metrics.RedisPool.WithLabelValues("hits").Set(float64(st.Hits))
			metrics.RedisPool.WithLabelValues("misses").Set(float64(st.Misses))
			metrics.RedisPool.WithLabelValues("timeouts").Set(float64(st.Timeouts))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close 逆序关闭; engine 先停, 数据库最后
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn(ctx, "close failed", zap.Error(err))
		}
	}
	a.closers = nil
	logger.Sync()
}
