package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// minFreeBytes below which maintenance reports the data directory as critical.
const minFreeBytes = 500 * 1024 * 1024

// Uploader sends an archive off-site.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// BackupTask creates an archive and uploads it when an uploader is configured.
type BackupTask struct {
	service  *BackupService
	uploader Uploader
	log      zerolog.Logger
}

// NewBackupTask creates the task. uploader may be nil.
func NewBackupTask(service *BackupService, uploader Uploader, log zerolog.Logger) *BackupTask {
	return &BackupTask{
		service:  service,
		uploader: uploader,
		log:      log.With().Str("job", "backup").Logger(),
	}
}

func (t *BackupTask) Name() string {
	return "maintenance:backup"
}

func (t *BackupTask) Run(ctx context.Context) error {
	path, err := t.service.Create(ctx)
	if err != nil {
		return err
	}
	if t.uploader == nil {
		return nil
	}
	if _, err := t.uploader.Upload(ctx, path); err != nil {
		return err
	}
	return nil
}

// MaintenanceTask checks database health, truncates WAL files and watches
// free disk space in the data directory.
type MaintenanceTask struct {
	databases []*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceTask creates the task.
func NewMaintenanceTask(databases []*database.DB, dataDir string, log zerolog.Logger) *MaintenanceTask {
	return &MaintenanceTask{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

func (t *MaintenanceTask) Name() string {
	return "maintenance:databases"
}

func (t *MaintenanceTask) Run(ctx context.Context) error {
	startTime := time.Now()

	for _, db := range t.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database %s failed health check: %w", db.Name(), err)
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next run retries.
			t.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	if err := t.checkDiskSpace(); err != nil {
		return err
	}

	t.log.Info().Dur("duration", time.Since(startTime)).Msg("Daily maintenance completed")
	return nil
}

func (t *MaintenanceTask) checkDiskSpace() error {
	usage, err := disk.Usage(t.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	t.log.Debug().Uint64("free_bytes", usage.Free).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")
	if usage.Free < minFreeBytes {
		t.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space in data directory")
		return fmt.Errorf("only %d MB free in %s", usage.Free/1024/1024, t.dataDir)
	}
	return nil
}
