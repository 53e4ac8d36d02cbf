package clientdata

import (
	"context"

	"github.com/rs/zerolog"
)

// CleanupTask removes expired entries from all client data tables.
// It is scheduled to run daily.
type CleanupTask struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupTask creates a new client data cleanup task.
func NewCleanupTask(repo *Repository, log zerolog.Logger) *CleanupTask {
	return &CleanupTask{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run removes all expired entries from all tables.
func (t *CleanupTask) Run(ctx context.Context) error {
	results, err := t.repo.DeleteAllExpired(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("Failed to delete expired client data")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			t.log.Debug().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired cache entries")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		t.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Client data cleanup completed")
	}

	return nil
}

// Name returns the task name for scheduling and logging.
func (t *CleanupTask) Name() string {
	return "clientdata:cleanup"
}
