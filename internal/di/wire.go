package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/clientdata"
	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/ledger"
	"github.com/aristath/autoinvest/internal/reliability"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/server"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/aristath/autoinvest/internal/strategy"
	"github.com/aristath/autoinvest/internal/work"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Databases and repositories
// 2. Event manager and its subscribers
// 3. State store, scheduler and strategy holder
// 4. Tenants and their tasks
// 5. Shared maintenance tasks
// 6. Status API
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := wire(container, cfg, log); err != nil {
		if container.Scheduler != nil {
			container.Scheduler.Shutdown()
			container.Scheduler.AwaitTermination(5 * time.Second)
		}
		_ = container.Close()
		return nil, err
	}

	log.Info().Int("tenants", len(container.Tenants)).Msg("Dependency injection wiring completed successfully")
	return container, nil
}

func wire(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.LedgerRepo = ledger.NewRepository(c.LedgerDB.Conn(), log)
	c.ClientDataRepo = clientdata.NewRepository(c.ClientDataDB.Conn())

	c.EventBus = events.NewBus()
	c.EventManager = events.NewManager(c.EventBus, log)
	c.Hub = events.NewHub(log)
	c.unsubscribe = append(c.unsubscribe,
		ledger.NewSubscriber(c.LedgerRepo, log).Subscribe(c.EventBus),
		c.EventBus.Subscribe(c.Hub.Publish),
	)

	codec, err := state.CodecFor(cfg.StateFormat)
	if err != nil {
		return err
	}
	c.StateStore, err = state.Open(cfg.StatePath(), codec, log)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	c.Scheduler = scheduler.New(cfg.Workers, log)
	c.Strategy = strategy.NewHolder()
	if cfg.StrategyFile != "" {
		c.LoadTask = strategy.NewLoadTask(cfg.StrategyFile, c.Strategy, log)
		// Load synchronously so the first marketplace tick already has a strategy.
		if err := c.LoadTask.Run(context.Background()); err != nil {
			log.Warn().Err(err).Str("file", cfg.StrategyFile).Msg("Initial strategy load failed")
		}
	} else {
		log.Warn().Msg("No strategy file configured, tenants will only observe")
	}

	if err := InitializeTenants(c, cfg, log); err != nil {
		return fmt.Errorf("failed to initialize tenants: %w", err)
	}

	if err := registerShared(c, cfg, log); err != nil {
		return fmt.Errorf("failed to register shared tasks: %w", err)
	}

	if cfg.Port > 0 {
		c.Server = server.New(server.Config{
			Log:       log,
			Port:      cfg.Port,
			DataDir:   cfg.DataDir,
			Tenants:   c.TenantList(),
			Scheduler: c.Scheduler,
			Ledger:    c.LedgerRepo,
			Events:    c.Hub,
		})
	}
	return nil
}

func registerShared(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Backup = reliability.NewBackupService(cfg.BackupDir(), cfg.StatePath(), c.Databases(), cfg.Backup.Keep, log)

	var uploader reliability.Uploader
	if cfg.Backup.S3Enabled() {
		s3, err := reliability.NewS3Uploader(context.Background(), reliability.S3Config{
			Bucket:    cfg.Backup.S3Bucket,
			Endpoint:  cfg.Backup.S3Endpoint,
			Region:    cfg.Backup.S3Region,
			AccessKey: cfg.Backup.S3AccessKey,
			SecretKey: cfg.Backup.S3SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to configure backup upload: %w", err)
		}
		uploader = s3
	}

	return work.RegisterShared(c.Scheduler, work.SharedDeps{
		Cleanup:     clientdata.NewCleanupTask(c.ClientDataRepo, log),
		Maintenance: reliability.NewMaintenanceTask(c.Databases(), cfg.DataDir, log),
		Backup:      reliability.NewBackupTask(c.Backup, uploader, log),
		BackupCron:  cfg.Backup.Cron,
	}, log)
}
