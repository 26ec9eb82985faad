// Package cleanup содержит сборку приложения очистки просроченных учетных записей.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lirumlarum/registration-service/internal/config"
	"github.com/lirumlarum/registration-service/internal/migrations"
	cleanupservice "github.com/lirumlarum/registration-service/internal/services/cleanup"
	"github.com/lirumlarum/registration-service/internal/services/registration"
	"github.com/lirumlarum/registration-service/internal/storage/repository"
)

// App представляет приложение очистки.
type App struct {
	cleanupService *cleanupservice.CleanupService
	db             *repository.Storage
	metricsAddr    string
	logger         *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := db.DB.Ping()
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения очистки.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registrationService := registration.New(db, nil, registration.Config{
		ActivationDays: cfg.ActivationDays,
		HashAlgorithm:  cfg.HashAlgorithm,
	}, logger)

	cleanupService := cleanupservice.New(registrationService, logger,
		cfg.CleanupInterval, cfg.SweepTimeout)

	return &App{
		cleanupService: cleanupService,
		db:             db,
		metricsAddr:    cfg.MetricsAddress,
		logger:         logger,
	}, nil
}

// Run запускает приложение очистки и HTTP-эндпоинт метрик.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server stopped", slog.Any("err", err))
		}
	}()

	a.cleanupService.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown metrics server", slog.Any("err", err))
	}

	a.db.Close()
	return nil
}
