package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/holisticconnect/holisticconnect/internal/config"
	"github.com/holisticconnect/holisticconnect/internal/domain/account"
	"github.com/holisticconnect/holisticconnect/internal/domain/appointment"
	"github.com/holisticconnect/holisticconnect/internal/domain/practitioner"
	"github.com/holisticconnect/holisticconnect/internal/domain/user"
	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
	"github.com/holisticconnect/holisticconnect/internal/platform/db"
	"github.com/holisticconnect/holisticconnect/internal/platform/mail"
	"github.com/holisticconnect/holisticconnect/internal/platform/middleware"
	"github.com/holisticconnect/holisticconnect/internal/platform/realtime"
	"github.com/holisticconnect/holisticconnect/internal/worker/reminder"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "holisticonnect-server",
		Short: "HolisticConnect wellness booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

// newLogger builds the process logger: human-readable console output in
// development, JSON everywhere else.
func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// clientConfigHandler serves the public app bootstrap block.
func clientConfigHandler(cc config.ClientConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, cc)
	}
}

func runServer() error {
	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	logger := newLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Domain services
	userRepo := user.NewRepoPG(pool)
	userSvc := user.NewService(userRepo, logger)
	practSvc := practitioner.NewService(practitioner.NewRepoPG(pool))
	apptRepo := appointment.NewRepoPG(pool, logger)
	apptSvc := appointment.NewService(apptRepo)

	// Identity provider and session plumbing
	tokens := auth.NewTokenManager([]byte(cfg.ResolvedJWTSecret()), cfg.Client.AuthDomain, cfg.Client.ProjectID, cfg.AccessTokenTTL)
	mailer := mail.NewMailer(mail.NewLogSender(logger), mail.NewTemplateEngine(), cfg.Client.AuthDomain)
	// Audience pinning is off; tokeninfo still validates signature and expiry.
	verifier := auth.NewGoogleVerifier("")
	provider := auth.NewProvider(auth.NewPGStore(pool), tokens, mailer, userSvc, verifier, logger, auth.ProviderConfig{
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	coordinator := auth.NewCoordinator(provider, userSvc, logger)
	accountSvc := account.NewService(provider, userSvc, practSvc, logger)

	// Reminder worker
	rem := reminder.NewWorker(apptRepo, userRepo, mailer, reminder.Config{
		Spec: cfg.ReminderCron,
		Lead: cfg.ReminderLead,
	}, logger)
	if err := rem.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reminder worker")
	}
	defer rem.Stop()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
	}))
	e.Use(auth.SessionMiddleware(tokens))
	e.Use(middleware.AccessLog(logger))

	// Health probes
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/readyz", db.ReadyHandler(pool))

	// Versioned API
	api := e.Group("/api/v1")

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RequestTimeout(30 * time.Second))
	api.Use(middleware.RateLimitWithContext(limiterCtx, rl))
	api.Use(middleware.PublicCache(middleware.DefaultPublicCacheConfig()))

	api.GET("/config/client", clientConfigHandler(cfg.Client))

	authGroup := api.Group("/auth", auth.APIKeyMiddleware(cfg.Client.APIKey))
	clientGroup := api.Group("/client", auth.RequireRole(auth.RoleClient))
	practGroup := api.Group("/practitioner", auth.RequireRole(auth.RolePractitioner))

	account.NewHandler(accountSvc).RegisterRoutes(authGroup, api)
	user.NewHandler(userSvc).RegisterRoutes(api)
	practitioner.NewHandler(practSvc).RegisterRoutes(api, practGroup)
	appointment.NewHandler(apptSvc).RegisterRoutes(api, clientGroup, practGroup)

	// Live appointment watches ride the session gate like every other route.
	gateway := realtime.NewGateway(apptSvc, coordinator, cfg.CORSOrigins, logger)
	gateway.RegisterRoutes(e.Group(""))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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
