package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/auth"
	"sentinelmesh/internal/config"
	"sentinelmesh/internal/db"
	"sentinelmesh/internal/detection"
	"sentinelmesh/internal/engine"
	"sentinelmesh/internal/events"
	"sentinelmesh/internal/httpserver"
	"sentinelmesh/internal/logging"
	"sentinelmesh/internal/messaging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest and alert API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

type stores struct {
	events events.Store
	alerts alerts.Store
	users  auth.UserStore
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory stores; data is lost on restart")
		return &stores{
			events: events.NewMemoryStore(),
			alerts: alerts.NewMemoryStore(),
			users:  auth.NewMemoryStore(),
			close:  func() {},
		}, nil
	}

	if err := db.RunMigrations(cfg.Database.DSN); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &stores{
		events: events.NewStore(conn),
		alerts: alerts.NewStore(conn),
		users:  auth.NewStore(conn),
		close:  func() { conn.Close() },
	}, nil
}

func newLocker(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (detection.Locker, func(), error) {
	if !cfg.Enabled {
		return detection.NewKeyedMutex(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("detection lock backed by redis", "addr", opts.Addr)
	return detection.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait), func() { client.Close() }, nil
}

func loadRules(path string) ([]detection.Rule, error) {
	if path == "" {
		return detection.DefaultRules(), nil
	}
	rules, err := detection.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return detection.DefaultRules(), nil
	}
	return rules, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(logger)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.Auth.UsersPath != "" {
		n, err := auth.SeedFromFile(ctx, st.users, cfg.Auth.UsersPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("users file not found; no operators seeded", "path", cfg.Auth.UsersPath)
		case err != nil:
			return fmt.Errorf("seed users: %w", err)
		default:
			logger.Info("operators seeded", "created", n)
		}
	}
	authSvc := auth.NewService(st.users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	rules, err := loadRules(cfg.Detection.RulesPath)
	if err != nil {
		return err
	}
	locker, closeLocker, err := newLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	pipeline, err := detection.NewPipeline(rules, st.events, st.alerts, detection.Options{
		Locker: locker,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var notifier engine.Notifier
	var natsClient *messaging.Client
	if cfg.NATS.Enabled {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsClient, err = messaging.NewClient(natsCfg, logger)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		notifier = messaging.NewAlertNotifier(natsClient, cfg.NATS.AlertSubjectPrefix, logger)
	}

	svc := engine.NewService(st.events, st.alerts, pipeline, engine.Options{
		ListLimit: cfg.Detection.ListLimit,
		Notifier:  notifier,
		Logger:    logger,
	})

	if natsClient != nil {
		consumer := messaging.NewEventConsumer(svc, logger)
		if err := consumer.Subscribe(natsClient, cfg.NATS.IngestSubject, cfg.NATS.QueueGroup); err != nil {
			return err
		}
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Logger:      logger,
		Auth:        authSvc,
		Engine:      svc,
		Events:      st.events,
		IngestToken: cfg.Auth.IngestToken,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	server := httpserver.New(cfg.HTTP, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("detection engine ready", "rules", len(rules), "driver", cfg.Database.Driver)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			logger.Warn("drain nats", "err", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	return nil
}
