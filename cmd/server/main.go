// timem - natural-language task list server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/timem/internal/api"
	"github.com/ashureev/timem/internal/chat"
	"github.com/ashureev/timem/internal/config"
	"github.com/ashureev/timem/internal/gateway"
	"github.com/ashureev/timem/internal/identity"
	"github.com/ashureev/timem/internal/middleware"
	"github.com/ashureev/timem/internal/notify"
	"github.com/ashureev/timem/internal/probe"
	"github.com/ashureev/timem/internal/prompt"
	"github.com/ashureev/timem/internal/store"
	"github.com/ashureev/timem/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "model_provider", cfg.Model.Provider)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := gateway.New(ctx, cfg.Model, logger)
	if err != nil {
		return err
	}
	defer model.Close()

	prompts, err := prompt.NewRegistry()
	if err != nil {
		return err
	}

	hub := transport.NewHub(cfg.AllowedOrigins, logger)
	chatService := chat.NewService(repo, model, prompts, hub, chat.Config{
		HistoryLimit: cfg.HistoryLimit,
		ModelTimeout: cfg.Model.Timeout,
	}, logger)
	scheduler := notify.NewScheduler(repo, model, prompts, hub, notify.Config{
		Interval:     cfg.Scheduler.Interval,
		DigestHour:   cfg.Scheduler.DigestHour,
		DigestMinute: cfg.Scheduler.DigestMinute,
	}, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	healthServer := probe.NewServer(repo, 15*time.Second, logger)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	api.NewHealthHandler(repo).RegisterHealth(r)

	// Identity-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware())
		api.NewHandler(repo, chatService).RegisterRoutes(r, limiter.Middleware)
		r.Get("/ws/notifications", hub.ServeHTTP)
	})

	// No WriteTimeout: websocket subscriptions are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return healthServer.Serve(gctx, grpcLis)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
