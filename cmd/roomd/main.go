package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"pkt.systems/pslog"

	"github.com/roomshare/roomd/internal/billing"
	"github.com/roomshare/roomd/internal/clock"
	"github.com/roomshare/roomd/internal/config"
	"github.com/roomshare/roomd/internal/database"
	"github.com/roomshare/roomd/internal/handler"
	"github.com/roomshare/roomd/internal/identity"
	"github.com/roomshare/roomd/internal/lockstore"
	"github.com/roomshare/roomd/internal/metrics"
	"github.com/roomshare/roomd/internal/model"
	"github.com/roomshare/roomd/internal/queue"
	"github.com/roomshare/roomd/internal/reconcile"
	"github.com/roomshare/roomd/internal/registry"
	"github.com/roomshare/roomd/internal/repository"
	"github.com/roomshare/roomd/internal/router"
	"github.com/roomshare/roomd/internal/shard"
	"github.com/roomshare/roomd/internal/subsync"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("ROOMD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "roomd")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config.invalid", "error", err)
		return 1
	}

	var (
		roomRepo *repository.RoomRepo
		subRepo  *repository.SubscriberRepo
	)
	if cfg.DBHost != "" {
		db, err := database.Open(database.Params{
			User: cfg.DBUser,
			Pass: cfg.DBPass,
			Host: cfg.DBHost,
			Port: cfg.DBPort,
			Name: cfg.DBName,
		})
		if err != nil {
			logger.Error("db.open.failed", "error", err)
			return 1
		}
		defer db.Close()
		roomRepo = repository.NewRoomRepo(db)
		subRepo = repository.NewSubscriberRepo(db)
	} else {
		logger.Info("db.disabled", "reason", "DB_HOST not set")
	}

	rdb, err := config.NewRedisClient()
	if err != nil {
		logger.Error("redis.connect.failed", "error", err)
		return 1
	}
	var locks *lockstore.Store
	if rdb != nil {
		defer rdb.Close()
		locks = lockstore.New(rdb)
	} else {
		logger.Info("redis.disabled", "reason", "no REDIS_HOST or REDIS_ADDR set")
	}

	var pub *queue.Publisher
	if cfg.AMQPUrl != "" {
		pub = queue.NewPublisher(cfg.AMQPUrl, logger)
		defer pub.Close()
	} else {
		logger.Info("queue.disabled", "reason", "AMQP_URL not set")
	}

	var emitter model.ChatEmitter
	if pub != nil {
		emitter = pub
	}
	reg := registry.New(emitter)
	resolver := shard.NewResolver(cfg.NumShards)
	m := metrics.New(prometheus.DefaultRegisterer)

	deps := reconcile.Deps{
		Registry: reg,
		Resolver: resolver,
		Shard:    cfg.Shard,
		Clock:    clock.Real{},
		Logger:   logger,
		Metrics:  m,
	}
	if roomRepo != nil {
		deps.Store = roomRepo
	}
	if locks != nil {
		deps.Locks = locks
	}
	if pub != nil {
		deps.StopPub = pub
	}
	sched := reconcile.New(deps, reconcile.Config{
		SaveInterval:        cfg.SaveInterval,
		ReleaseInterval:     cfg.ReleaseInterval,
		ReleaseBatches:      cfg.ReleaseBatches,
		RenewInterval:       cfg.RenewInterval,
		ReclaimInterval:     cfg.ReclaimInterval,
		VBrowserMaxAge:      cfg.VBrowserMaxAge,
		VBrowserMaxAgeLarge: cfg.VBrowserMaxAgeLarge,
		LockTTL:             cfg.VBrowserLockTTL,
		UIDLockTTL:          cfg.VBrowserUIDLockTTL,
		EmptyIdleAfter:      cfg.RoomIdleEvictAfter,
	})
	sched.LoadRooms(context.Background())
	sched.Start()
	defer sched.Stop()

	var fatalc <-chan error
	if cfg.BillingAPIURL != "" && cfg.BillingAPIKey != "" &&
		cfg.IdentityAPIURL != "" && cfg.IdentityServiceSecret != "" && roomRepo != nil {
		syncer := subsync.New(
			billing.NewClient(cfg.BillingAPIURL, cfg.BillingAPIKey, nil),
			identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityServiceSecret, nil),
			subsync.NewMySQLStore(roomRepo, subRepo),
			clock.Real{},
			logger,
			m,
			subsync.Config{Interval: cfg.SubsyncInterval, ResolveBatch: cfg.SubsyncResolveBatch},
		)
		syncer.Start()
		defer syncer.Stop()
		fatalc = syncer.Fatal()
	} else {
		logger.Info("subsync.disabled", "reason", "billing, identity and database must all be configured")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	var usage handler.UsageSource
	if locks != nil {
		usage = locks
	}
	var subs handler.SubscriberCounter
	if subRepo != nil {
		subs = subRepo
	}
	router.RegisterOps(e, handler.NewOpsHandler(reg, resolver, cfg.Shard, usage, subs))

	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(":" + cfg.Port)
	}()
	logger.Info("server.started", "port", cfg.Port, "env", cfg.Env,
		"shard", cfg.Shard, "num_shards", cfg.NumShards, "rooms", reg.Len())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case s := <-sig:
		logger.Info("server.stopping", "signal", s.String())
	case err := <-fatalc:
		logger.Error("subsync.fatal", "error", err)
		code = 1
	case err := <-errc:
		logger.Error("server.failed", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Warn("server.shutdown.failed", "error", err)
	}
	return code
}
