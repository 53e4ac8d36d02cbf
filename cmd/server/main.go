// Package main is the entry point of the autoinvest daemon. It runs one tenant
// per configured account and polls the marketplace on a schedule until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/di"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/pkg/logger"
)

const schedulerDrainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("accounts", len(cfg.Accounts)).
		Bool("dry_run", cfg.DryRun).
		Msg("Starting autoinvest")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	for _, a := range container.Tenants {
		session := a.Tenant.SessionInfo()
		container.EventManager.Fire(events.New(events.TenantStarted, session.Username, &events.TenantData{
			Name:   session.Name,
			DryRun: session.DryRun,
		}))
	}

	if container.Server != nil {
		go func() {
			if err := container.Server.Start(); err != nil {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	container.Scheduler.Shutdown()
	if !container.Scheduler.AwaitTermination(schedulerDrainTimeout) {
		log.Warn().Dur("timeout", schedulerDrainTimeout).Msg("Tasks still running after shutdown timeout")
	}

	if container.Server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := container.Server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		shutdownCancel()
	}

	for _, a := range container.Tenants {
		session := a.Tenant.SessionInfo()
		container.EventManager.Fire(events.New(events.TenantStopped, session.Username, &events.TenantData{
			Name:   session.Name,
			DryRun: session.DryRun,
		}))
	}

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release resources")
	}
	log.Info().Msg("Stopped")
}
