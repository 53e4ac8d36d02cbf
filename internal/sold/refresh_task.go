package sold

import (
	"context"

	"github.com/rs/zerolog"
)

// RefreshTask keeps the remote snapshot warm so WasSold rarely blocks on I/O.
type RefreshTask struct {
	name    string
	tracker *Tracker
	log     zerolog.Logger
}

// NewRefreshTask creates the refresh task for one account.
func NewRefreshTask(account string, tracker *Tracker, log zerolog.Logger) *RefreshTask {
	name := "sold:refresh:" + account
	return &RefreshTask{name: name, tracker: tracker, log: log.With().Str("job", name).Logger()}
}

func (t *RefreshTask) Name() string {
	return t.name
}

func (t *RefreshTask) Run(ctx context.Context) error {
	if err := t.tracker.Refresh(ctx); err != nil {
		t.log.Warn().Err(err).Msg("Sold positions refresh failed")
		return err
	}
	return nil
}
