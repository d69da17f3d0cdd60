package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/application/registry"
	"github.com/go-notify-hub/internal/application/router"
	"github.com/go-notify-hub/internal/application/socket"
	"github.com/go-notify-hub/internal/config"
	"github.com/go-notify-hub/internal/domain"
	"github.com/go-notify-hub/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-notify-hub/internal/infrastructure/jwt"
	"github.com/go-notify-hub/internal/infrastructure/memory"
	mongoinfra "github.com/go-notify-hub/internal/infrastructure/mongo"
	"github.com/go-notify-hub/internal/infrastructure/sns"
	transporthttp "github.com/go-notify-hub/internal/transport/http"
	"github.com/go-notify-hub/internal/transport/ws"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}
	cfg := config.Load()
	if cfg.IsProduction() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("notification store unavailable", "backend", cfg.NotificationStore, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// JWT provider (optional). Without it REST user routes are not mounted
	// and authenticate cannot verify tokens.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		slog.Warn("JWT provider not available", "error", err)
	}

	reg := registry.New()
	rt := router.New(reg, nil)

	deps := notification.ServiceDeps{Store: store, Router: rt, Presence: reg}
	if cfg.SNSOfflineTopicARN != "" {
		if relay, err := sns.NewOfflineRelay(cfg); err == nil {
			deps.Relay = relay
		} else {
			slog.Warn("SNS offline relay not available", "error", err)
		}
	}
	notifications := notification.NewService(deps)

	dispatcherDeps := socket.Deps{
		Bindings:      reg,
		Sender:        rt,
		Notifications: notifications,
		RequireToken:  cfg.RequireTokenOnAuthenticate,
	}
	if jwtProvider != nil {
		dispatcherDeps.Tokens = jwtProvider
	}
	hub := ws.NewHub(socket.NewDispatcher(dispatcherDeps), ws.Options{
		SendBuffer:      cfg.WSSendBuffer,
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
		AllowedOrigins:  cfg.AllowedOrigins,
	})
	rt.SetSender(hub)

	handler, stopLimiter := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Notifications: notifications,
		Registry:      reg,
		Router:        rt,
		Hub:           hub,
		JWTProvider:   jwtProvider,
	})
	defer stopLimiter()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.AppPort),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would also apply to hijacked websocket conns.
		IdleTimeout: 60 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go runCleanup(cleanupCtx, notifications, cfg.CleanupInterval, cfg.CleanupMaxAgeDays)

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.NotificationStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopCleanup()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rt.BroadcastAll(domain.EventSystem, domain.SystemPayload{
		Type:    "shutdown",
		Message: "server is shutting down",
	})
	if err := hub.Shutdown(shutdownCtx); err != nil {
		slog.Warn("websocket hub did not stop cleanly", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// openStore selects the notification backend named by NOTIFICATION_STORE.
func openStore(ctx context.Context, cfg *config.Config) (notification.Store, func(), error) {
	switch cfg.NotificationStore {
	case config.StoreDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewNotificationRepo(client, cfg.DynamoTables.Notifications), func() {}, nil
	case config.StoreMongo:
		db, err := mongoinfra.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			slog.Warn("mongo indexes not ensured", "error", err)
		}
		closeFn := func() {
			if err := db.Close(context.Background()); err != nil {
				slog.Warn("mongo disconnect", "error", err)
			}
		}
		return mongoinfra.NewNotificationRepo(db.Database), closeFn, nil
	case config.StoreMemory:
		slog.Warn("using in-memory notification store; data is lost on restart")
		return memory.NewNotificationRepo(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification store %q", cfg.NotificationStore)
	}
}

// runCleanup soft-deletes old read notifications on every tick until ctx ends.
func runCleanup(ctx context.Context, svc notification.Service, interval time.Duration, maxAgeDays int) {
	if interval <= 0 {
		slog.Info("notification cleanup disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CleanupExpired(ctx, maxAgeDays); err != nil {
				slog.Error("notification cleanup failed", "error", err)
			}
		}
	}
}
