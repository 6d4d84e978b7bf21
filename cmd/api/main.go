package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablemate/tablemate/internal/chat"
	"github.com/tablemate/tablemate/internal/config"
	"github.com/tablemate/tablemate/internal/connection"
	"github.com/tablemate/tablemate/internal/dinner"
	"github.com/tablemate/tablemate/internal/httpapi"
	"github.com/tablemate/tablemate/internal/mail"
	"github.com/tablemate/tablemate/internal/notification"
	"github.com/tablemate/tablemate/internal/push"
	"github.com/tablemate/tablemate/internal/user"
	"github.com/tablemate/tablemate/pkg/database"
	"github.com/tablemate/tablemate/pkg/messaging"
	"github.com/tablemate/tablemate/pkg/observability"
)

func main() {
	logger := observability.NewLogger("tablemate-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "tablemate-api",
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OTELEndpoint,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	// Everything beyond Postgres is optional: a missing broker or cache
	// degrades the relevant feature instead of blocking startup.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, caching and scheduler lock disabled", "error", err)
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	var pushGateway push.Gateway
	if cfg.SNSPlatformARN != "" {
		gw, err := push.NewSNSGateway(ctx, cfg.SNSRegion, cfg.PushChannelID, logger.Logger)
		if err != nil {
			logger.Warn("push gateway unavailable, falling back to no-op", "error", err)
			pushGateway = push.Unavailable(logger.Logger)
		} else {
			pushGateway = gw
		}
	} else {
		pushGateway = push.Unavailable(logger.Logger)
	}

	notifRepo := notification.NewRepository(db)
	notifOpts := []notification.Option{}
	if redisClient != nil {
		notifOpts = append(notifOpts, notification.WithUnreadCache(redisClient))
	}

	var rabbit *messaging.RabbitClient
	if cfg.RabbitURL != "" {
		rabbit, err = messaging.NewRabbitClient(messaging.DefaultRabbitConfig(cfg.RabbitURL))
		if err != nil {
			logger.Warn("rabbitmq unavailable, email delivery disabled", "error", err)
			rabbit = nil
		} else {
			defer rabbit.Close()
			if _, err := rabbit.DeclareQueue(notification.EmailQueue); err != nil {
				logger.Warn("failed to declare email queue", "error", err)
			} else {
				notifOpts = append(notifOpts, notification.WithTaskQueue(rabbit))
			}
		}
	}

	var eventWriter *messaging.EventWriter
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		eventWriter = messaging.NewEventWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer eventWriter.Close()
		notifOpts = append(notifOpts, notification.WithEventPublisher(eventWriter))
	}

	notifSvc := notification.NewService(notifRepo, pushGateway, logger.Logger, notifOpts...)

	userSvc := user.NewService(user.NewRepository(db), cfg.JWTSecret, cfg.JWTExpiry)
	dinnerSvc := dinner.NewService(dinner.NewRepository(db), notifSvc, logger.Logger)
	connSvc := connection.NewService(connection.NewRepository(db), notifSvc, logger.Logger)

	hub := chat.NewHub(logger.Logger)
	go hub.Run()
	chatSvc := chat.NewService(hub, chat.NewRepository(db), logger.Logger)

	// Email worker: drains the queue this same process publishes to.
	if rabbit != nil && cfg.ResendAPIKey != "" {
		worker := notification.NewEmailWorker(
			mail.NewSender(cfg.ResendAPIKey, cfg.FromEmail), redisClient, logger.Logger)
		go func() {
			if err := rabbit.Consume(ctx, notification.EmailQueue, func(body []byte) error {
				return worker.Process(ctx, body)
			}); err != nil && ctx.Err() == nil {
				logger.Error("email consumer stopped", "error", err)
			}
		}()
	} else if rabbit != nil {
		logger.Warn("no mail API key configured, queued email will not be delivered")
	}

	// Reminder scheduler. The Redis lease keeps multi-replica deployments
	// from scanning concurrently; without Redis the scan runs unlocked.
	schedOpts := []notification.SchedulerOption{}
	if redisClient != nil {
		schedOpts = append(schedOpts, notification.WithLock(
			notification.NewRedisLock(redisClient, "tablemate:scheduler", cfg.SchedulerLockTTL, logger.Logger)))
	}
	scheduler := notification.NewScheduler(notifSvc,
		cfg.SchedulerInterval, cfg.SchedulerBackoff, logger.Logger, schedOpts...)
	go scheduler.Run(ctx)

	server := httpapi.NewServer(httpapi.ServerParams{
		Users:         userSvc,
		Dinners:       dinnerSvc,
		Notifications: notifSvc,
		Connections:   connSvc,
		Chat:          chatSvc,
		AdminSecret:   cfg.AdminAPISecret,
		AdminKeyHash:  cfg.AdminAPIKeyHash,
		Logger:        logger.Logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
