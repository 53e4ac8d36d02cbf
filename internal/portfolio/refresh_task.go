package portfolio

import (
	"context"

	"github.com/rs/zerolog"
)

// RefreshTask periodically reloads the portfolio from the remote service.
type RefreshTask struct {
	name      string
	portfolio *Portfolio
	log       zerolog.Logger
}

// NewRefreshTask creates the refresh task for one tenant.
func NewRefreshTask(tenant string, p *Portfolio, log zerolog.Logger) *RefreshTask {
	name := "portfolio:refresh:" + tenant
	return &RefreshTask{
		name:      name,
		portfolio: p,
		log:       log.With().Str("job", name).Logger(),
	}
}

func (t *RefreshTask) Name() string {
	return t.name
}

// Run refreshes once. A failure keeps the previous snapshot.
func (t *RefreshTask) Run(ctx context.Context) error {
	if err := t.portfolio.Refresh(ctx); err != nil {
		t.log.Warn().Err(err).Msg("Portfolio refresh failed, keeping previous snapshot")
		return err
	}
	return nil
}
