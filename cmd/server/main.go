// Command logtide-server starts the log aggregation server: HTTP API,
// WebSocket live feed, notification dispatcher, and retention worker.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logtide/logtide/internal/authz"
	"github.com/logtide/logtide/internal/config"
	"github.com/logtide/logtide/internal/hub"
	"github.com/logtide/logtide/internal/limiter"
	"github.com/logtide/logtide/internal/mcp"
	"github.com/logtide/logtide/internal/migrate"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/notify"
	"github.com/logtide/logtide/internal/pubsub"
	"github.com/logtide/logtide/internal/repository/postgres"
	"github.com/logtide/logtide/internal/retention"
	httpserver "github.com/logtide/logtide/internal/server/http"
	"github.com/logtide/logtide/internal/service"
	"github.com/logtide/logtide/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	addr := flag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
	dsn := flag.String("dsn", "", "postgres DSN (overrides DATABASE_URL)")
	flag.Parse()
	if *dsn != "" {
		_ = os.Setenv("DATABASE_URL", *dsn)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.ListenAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Redis: pub/sub relay plus the notification queue.
	redisc, err := pubsub.Dial(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis dial", zap.Error(err))
	}
	defer func() { _ = redisc.Close() }()

	// Repositories
	db := &postgres.DB{Pool: pool}
	userRepo := postgres.NewUserRepo(db)
	projectRepo := postgres.NewProjectRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	channelRepo := postgres.NewChannelRepo(db)
	historyRepo := postgres.NewHistoryRepo(db)
	pushRepo := postgres.NewPushRepo(db)
	tokenRepo := postgres.NewTokenRepo(db)
	activityRepo := postgres.NewActivityRepo(db)

	lim := limiter.NewPG(pool, 15*time.Minute, 10, 15*time.Minute)
	sessions := session.New(cfg.JWTSecret, cfg.SessionTTL, cfg.TempTTL)
	auth := authz.New(projectRepo)
	liveHub := hub.New(hub.DefaultQueueSize)

	httpc := &http.Client{Timeout: 15 * time.Second}
	senders := map[model.ChannelType]notify.Sender{
		model.ChannelWebPush:  notify.NewWebPushSender(pushRepo, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, logger),
		model.ChannelTelegram: notify.NewTelegramSender(httpc, cfg.TelegramBotToken),
		model.ChannelDiscord:  notify.NewDiscordSender(httpc),
	}

	// Services
	authSvc := service.NewAuthService(userRepo, sessions, lim)
	userSvc := service.NewUserAdminService(userRepo)
	projectSvc := service.NewProjectService(projectRepo, userRepo, auth)
	channelSvc := service.NewChannelService(channelRepo, historyRepo, auth, senders)
	querySvc := service.NewQueryService(eventRepo, auth)
	tokenSvc := service.NewTokenService(tokenRepo, activityRepo, projectRepo)
	pushSvc := service.NewPushService(pushRepo, auth, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	ingestSvc := service.NewIngestService(projectRepo, channelRepo, eventRepo, liveHub, redisc, logger)
	tools := mcp.New(tokenRepo, activityRepo, eventRepo, projectRepo, logger)

	// Background workers observe the shutdown context.
	var workers sync.WaitGroup

	dispatcher := notify.New(redisc, channelRepo, historyRepo, senders, cfg.NotifyWorkers, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		dispatcher.Run(ctx)
	}()

	sweeper := retention.New(projectRepo, eventRepo, cfg.RetentionInterval, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(ctx)
	}()

	// Relay events published by other processes into the local hub.
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := redisc.SubscribeEvents(ctx, liveHub.Broadcast); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("pubsub relay", zap.Error(err))
		}
	}()

	srv := httpserver.New(httpserver.Options{
		Log:              logger,
		Sessions:         sessions,
		Auth:             authSvc,
		Users:            userSvc,
		Projects:         projectSvc,
		Channels:         channelSvc,
		Query:            querySvc,
		Tokens:           tokenSvc,
		Push:             pushSvc,
		Ingest:           ingestSvc,
		Tools:            tools,
		Hub:              liveHub,
		Authz:            auth,
		DB:               pool,
		Redis:            redisc,
		IngestRatePerSec: cfg.IngestRatePerSec,
		IngestBurst:      cfg.IngestBurst,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		liveHub.Close()
		workers.Wait()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
