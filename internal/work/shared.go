package work

import (
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/clientdata"
	"github.com/aristath/autoinvest/internal/reliability"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/rs/zerolog"
)

const dailyInterval = 24 * time.Hour

// SharedDeps contains the tasks that are not bound to a tenant. Nil tasks are skipped.
type SharedDeps struct {
	Cleanup     *clientdata.CleanupTask
	Maintenance *reliability.MaintenanceTask
	Backup      *reliability.BackupTask
	BackupCron  string // empty disables the backup
}

// RegisterShared submits the shared maintenance tasks.
func RegisterShared(s *scheduler.Scheduler, deps SharedDeps, log zerolog.Logger) error {
	if deps.Cleanup != nil {
		if err := s.Submit(deps.Cleanup, dailyInterval); err != nil {
			return fmt.Errorf("failed to submit %s: %w", deps.Cleanup.Name(), err)
		}
	}
	if deps.Maintenance != nil {
		if err := s.Submit(deps.Maintenance, dailyInterval); err != nil {
			return fmt.Errorf("failed to submit %s: %w", deps.Maintenance.Name(), err)
		}
	}
	if deps.Backup != nil && deps.BackupCron != "" {
		if err := s.SubmitCron(deps.Backup, deps.BackupCron); err != nil {
			return fmt.Errorf("failed to submit %s: %w", deps.Backup.Name(), err)
		}
		log.Info().Str("cron", deps.BackupCron).Msg("Backups scheduled")
	}
	return nil
}
