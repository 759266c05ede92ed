package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/relay-gateway/internal/bodystream"
	"github.com/tjfontaine/relay-gateway/internal/config"
	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/dispatch"
	"github.com/tjfontaine/relay-gateway/internal/journal"
	"github.com/tjfontaine/relay-gateway/internal/router"
	"github.com/tjfontaine/relay-gateway/internal/server"
	"github.com/tjfontaine/relay-gateway/internal/steps"
	"github.com/tjfontaine/relay-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(telemetry.Options{
			ServiceName: "relay-gateway",
			PrettyPrint: cfg.Telemetry.Pretty,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	var opts []dispatch.Option
	if cfg.Journal.Enabled {
		store, err := journal.New(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer store.Close()
		opts = append(opts, dispatch.WithRecorder(store))
		logger.Info("journal enabled", slog.String("path", cfg.Journal.Path))
	}

	dispatcher := dispatch.New(logger, opts...)
	srv := server.New(server.Options{
		Port:    cfg.Server.Port,
		Tracing: cfg.Telemetry.Enabled,
	}, logger)

	registerRoutes(router.New(srv.Mux(), dispatcher, logger), cfg)

	// Serve until interrupted, then drain.
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigCh:
		logger.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// registerRoutes wires the reference routes: an echo endpoint behind
// bearer auth and, when configured, a streaming file endpoint.
func registerRoutes(table *router.Table, cfg *config.Config) {
	var requestSteps []router.RouteOption
	if len(cfg.Auth.Tokens) > 0 {
		requestSteps = append(requestSteps, router.WithRequestSteps(steps.BearerAuth(cfg.Auth.Tokens)))
	}

	echoOpts := append(requestSteps,
		router.WithResponseSteps(steps.SetHeader("X-Served-By", "relay-gateway")))

	table.Post("/echo", func(_ context.Context, req *domain.Request, _ *domain.Response) (*domain.Response, error) {
		var payload map[string]any
		if err := req.ReadJSON(&payload); err != nil {
			return nil, err
		}
		return domain.JSON(http.StatusOK, payload), nil
	}, echoOpts...)

	table.Get("/whoami", func(_ context.Context, req *domain.Request, _ *domain.Response) (*domain.Response, error) {
		principal, ok := domain.Extension[steps.Principal](req, steps.PrincipalKey)
		if !ok {
			return nil, domain.Fail(domain.JSON(http.StatusUnauthorized, map[string]string{
				"error": "no principal attached",
			}))
		}
		return domain.JSON(http.StatusOK, map[string]string{"token": principal.Token}), nil
	}, requestSteps...)

	if cfg.Server.StaticDir != "" {
		table.Get("/files/{name}", func(_ context.Context, req *domain.Request, res *domain.Response) (*domain.Response, error) {
			name := filepath.Base(req.Param("name"))
			src, err := bodystream.Open(filepath.Join(cfg.Server.StaticDir, name))
			if err != nil {
				return nil, domain.Fail(domain.JSON(http.StatusNotFound, map[string]string{
					"error": "no such file",
				}))
			}
			res.Header.Set("Content-Type", "application/octet-stream")
			return res.ServeFile(src), nil
		})
	}
}
