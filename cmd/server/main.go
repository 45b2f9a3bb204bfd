// @title           Event Registry API
// @version         1.0.0
// @description     Multi-tenant event registration: organizers, events and their forms, public submissions with email verification, and the back office around them.
// @contact.name    Support
// @contact.email   support@example.com
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "Access token: 'Bearer {token}'. Browsers use the access_token cookie instead."
// @securityDefinitions.apiKey  SetupToken
// @in                          header
// @name                         Authorization
// @description                  "One-time setup token printed at first start: 'SetupToken {token}'."
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated port (default: 9090) at GET /metrics, outside the Gin router. Configure the port with EVR_TELEMETRY_METRICS_PROMETHEUS_PORT.

// Package main is the entry point for the event registry server binary.
// It dispatches three subcommands, serve, migrate and version, via a switch on
// os.Args. The serve command runs migrations on startup so a fresh container
// never needs a separate migration step.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/event-registry/event-registry/internal/api"
	"github.com/event-registry/event-registry/internal/api/setup"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/safego"
	"github.com/event-registry/event-registry/internal/telemetry"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// A local .env is optional; real deployments set EVR_* directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Event Registry v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections,
		cfg.Database.MinIdleConnections, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	if err := announceSetupToken(database, cfg.Security.TLS.Enabled); err != nil {
		slog.Warn("setup token handling failed", "error", err)
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		slog.Info("using Redis for rate limiting", "addr", cfg.Redis.Addr)
	}

	router, bgServices := api.NewRouter(cfg, database, rdb)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return safego.Run("http-server", func() error {
			slog.Info("starting server", "addr", server.Addr, "base_url", cfg.Server.BaseURL,
				"tls", cfg.Security.TLS.Enabled)
			var err error
			if cfg.Security.TLS.Enabled {
				err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
	})

	if metricsServer != nil {
		g.Go(func() error {
			return safego.Run("metrics-server", func() error {
				slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			})
		})
	}

	safego.Go("verification-mailer", func() { bgServices.Start(gctx) })
	safego.Go("db-stats", func() { telemetry.StartDBStatsCollector(gctx, database, 15*time.Second) })

	// Shutdown runs once the signal arrives or any server fails.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server forced to shutdown: %w", err))
			}
		}
		bgServices.Shutdown()
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// announceSetupToken prints a freshly generated setup token so the operator can create the
// first super admin. Only its bcrypt hash is stored.
func announceSetupToken(sqlDB *sql.DB, tlsEnabled bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := setup.EnsureToken(ctx,
		repositories.NewSettingsRepository(sqlDB),
		repositories.NewSystemMembershipRepository(sqlDB))
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	separator := strings.Repeat("=", 66)
	log.Println("")
	log.Println(separator)
	log.Println("  INITIAL SETUP REQUIRED")
	log.Println("")
	log.Printf("  Setup Token: %s", token)
	log.Println("")
	log.Println("  Create the first administrator with:")
	log.Println("    POST /api/v1/setup/admin")
	log.Println("    Authorization: SetupToken <token>")
	log.Println("")
	log.Println("  The token stops working once setup is completed.")
	log.Println(separator)
	log.Println("")

	if !tlsEnabled {
		slog.Warn("TLS is not enabled; the setup token will be transmitted in plaintext")
	}
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections,
		cfg.Database.MinIdleConnections, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", v, dirty)
	return nil
}
