package main

import (
	"context"
	"dream-san/internal/api"
	"dream-san/internal/app"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"dream-san/internal/metrics"
	"dream-san/internal/middleware"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/postgres"
	"dream-san/internal/repository/sqlite"
	"dream-san/internal/service/llm"
	"dream-san/internal/storage/images"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func openDatabase(cfg config.DatabaseConfig) (db.Database, error) {
	if cfg.Driver == "sqlite" {
		return sqlite.NewSQLiteDB(cfg.SQLitePath)
	}
	return postgres.NewPostgresDB(cfg)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.WithError(err).Warn("Error reading .env file")
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	logger.Log.WithField("driver", appConfig.Database.Driver).Info("Initializing database")
	database, err := openDatabase(appConfig.Database)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close()

	interpreter, err := llm.NewInterpreter(ctx, &appConfig.LLM, appConfig.Models)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize interpreter")
	}
	logger.Log.WithFields(logrus.Fields{
		"provider":      interpreter.Name(),
		"default_model": interpreter.DefaultModel(),
	}).Info("Interpreter ready")

	m := metrics.New()
	appCfg := app.NewConfig(database, appConfig, interpreter, m)

	if appConfig.Images.Enabled && appConfig.LLM.OpenAIAPIKey != "" && appConfig.S3.AccessKey != "" {
		generator, genErr := llm.NewOpenAIImageGenerator(appConfig.LLM.OpenAIAPIKey, &appConfig.Images)
		store, storeErr := images.NewS3Store(ctx, &appConfig.S3)
		if err := errors.Join(genErr, storeErr); err != nil {
			logger.Log.WithError(err).Warn("Dream illustrations disabled")
		} else {
			appCfg.WithImages(generator, store)
			logger.Log.WithField("bucket", appConfig.S3.Bucket).Info("Dream illustrations enabled")
		}
	} else {
		logger.Log.Info("Dream illustrations disabled")
	}

	if appConfig.Cron.Schedule != "" {
		scheduler, err := appCfg.Billing.StartSchedule(ctx, appConfig.Cron.Schedule)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to start monthly grant schedule")
		}
		defer scheduler.Stop()
	}

	limiter := middleware.NewRateLimiter(appConfig.RateLimit.RequestsPerSecond, appConfig.RateLimit.Burst)
	limiter.StartCleanup(5*time.Minute, ctx.Done())

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           api.NewRouter(appCfg, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.WithField("port", appConfig.Server.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Graceful shutdown failed")
	}
}
