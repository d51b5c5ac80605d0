package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fkeenv/lyra-health-sub001/internal/config"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/access"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/audit"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/consent"
	"github.com/fkeenv/lyra-health-sub001/internal/domain/lifecycle"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/auth"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/db"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/healthrecord"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/middleware"
	"github.com/fkeenv/lyra-health-sub001/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "consent-server",
		Short: "Consent and access authorization service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consent API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the consent lifecycle sweep once",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			typesFlag, _ := cmd.Flags().GetString("types")

			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			consentRepo := consent.NewRepoPG(pool)
			auditRepo := audit.NewRepoPG(pool)
			auditSvc := audit.NewService(auditRepo)

			notifyMgr := notification.NewNotificationManager(
				&notification.MockEmailSender{}, &notification.MockSMSSender{}, notification.NewTemplateEngine())
			notifier := notification.NewPatientNotifier(notifyMgr, notification.NewResolverPG(pool), logger)

			sweeper := lifecycle.NewSweeper(consentRepo, auditRepo, auditSvc, notifier, db.NewTxRunner(pool), logger)

			opts := lifecycle.Options{
				ExpiredGraceDays:    cfg.ExpiredGraceDays,
				RevokedCleanupDays:  cfg.RevokedCleanupDays,
				InactiveCleanupDays: cfg.InactiveCleanupDays,
				DryRun:              dryRun,
				Notify:              cfg.SweepNotify && !dryRun,
				BatchSize:           cfg.SweepBatchSize,
				Timeout:             cfg.SweepTimeout(),
			}
			if typesFlag != "" {
				for _, t := range strings.Split(typesFlag, ",") {
					opts.Types = append(opts.Types, lifecycle.CleanupType(strings.TrimSpace(t)))
				}
			}

			stats, err := sweeper.Run(ctx, opts, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d expired=%d archived=%d flagged=%d notified=%d errors=%d\n",
				stats.Processed, stats.Expired, stats.Archived, stats.Flagged, stats.Notified, stats.Errors)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Select and log candidates without mutating anything")
	cmd.Flags().String("types", "", "Comma-separated cleanup types (expired,long_revoked,inactive_access); default all")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	consentRepo := consent.NewRepoPG(pool)
	auditRepo := audit.NewRepoPG(pool)

	// Services
	auditSvc := audit.NewService(auditRepo)

	notifyMgr := notification.NewNotificationManager(
		&notification.MockEmailSender{}, &notification.MockSMSSender{}, notification.NewTemplateEngine())
	notifier := notification.NewPatientNotifier(notifyMgr, notification.NewResolverPG(pool), logger)

	consentSvc := consent.NewService(consentRepo, notifier, consent.Config{
		RestoreWindowDays:   cfg.RestoreWindowDays,
		DeleteRetentionDays: cfg.RevokedCleanupDays,
	})

	engine := access.NewEngine(consentRepo, access.NewVerifierPG(pool), auditSvc, logger)
	recordStore := healthrecord.NewStorePG(pool)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(cfg.DevActorID))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeout) * time.Second))

	// Domain handlers
	consent.NewHandler(consentSvc).RegisterRoutes(apiV1)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	access.NewHandler(engine, recordStore).RegisterRoutes(apiV1)
	notification.NewNotificationHandler(notifyMgr).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
