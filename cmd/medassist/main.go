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

	"github.com/medassist/medassist/internal/config"
	"github.com/medassist/medassist/internal/domain/chat"
	"github.com/medassist/medassist/internal/domain/imaging"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/domain/sidebar"
	"github.com/medassist/medassist/internal/domain/workflow"
	"github.com/medassist/medassist/internal/platform/db"
	"github.com/medassist/medassist/internal/platform/journal"
	"github.com/medassist/medassist/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "medassist",
		Short:         "Medical assistant client and backend-for-frontend server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(assistantCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(analyzeImageCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the backend-for-frontend HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	a.docList.Start(ctx)
	a.medList.Start(ctx)

	e := newRouter(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.BackendURL).Msg("starting server")
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
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newRouter(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", a.cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"backend": a.cfg.BackendURL,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, func() *db.PoolStats { return db.GetPoolStats(a.pool) }))
	}

	api := e.Group("/api/v1")
	patient.NewHandler(a.patients).RegisterRoutes(api)
	workflow.NewHandler(a.machine).RegisterRoutes(api)
	sidebar.NewHandler(a.docList).RegisterRoutes(api)
	sidebar.NewHandler(a.medList).RegisterRoutes(api)
	sidebar.RegisterAll(api, a.convs)
	chat.NewHandler(a.chat).RegisterRoutes(api)
	imaging.NewHandler(a.imaging).RegisterRoutes(api)
	journal.NewHandler(a.journal).RegisterRoutes(api)

	return e
}
