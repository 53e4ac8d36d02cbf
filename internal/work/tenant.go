package work

import (
	"fmt"
	"time"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/portfolio"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/sold"
	"github.com/aristath/autoinvest/internal/strategy"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/rs/zerolog"
)

// Intervals are the fixed delays of the per-tenant tasks.
type Intervals struct {
	PortfolioRefresh time.Duration
	SoldRefresh      time.Duration
	CacheSweep       time.Duration
	StrategyLoad     time.Duration
	MarketplacePoll  time.Duration
}

// TenantDeps contains everything RegisterTenant schedules for one account.
type TenantDeps struct {
	Tenant    *tenant.Remote
	Executor  *strategy.Executor
	LoadTask  *strategy.LoadTask
	Intervals Intervals
}

// TenantTasks are the submitted tasks of one tenant.
type TenantTasks struct {
	Portfolio   *portfolio.RefreshTask
	Sold        *sold.RefreshTask
	Sweep       *cache.SweepTask
	Marketplace *MarketplaceTask
}

type submission struct {
	task   scheduler.Task
	period time.Duration
}

// RegisterTenant submits every per-tenant task.
func RegisterTenant(s *scheduler.Scheduler, deps TenantDeps, log zerolog.Logger) (*TenantTasks, error) {
	t := deps.Tenant
	account := t.SessionInfo().Username

	tasks := &TenantTasks{
		Portfolio: portfolio.NewRefreshTask(account, t.Portfolio(), log),
		Sold:      sold.NewRefreshTask(account, t.SoldTracker(), log),
		Sweep:     cache.NewSweepTask("cache:sweep:"+account, log, t.Caches()...),
	}
	tasks.Marketplace = NewMarketplaceTask(t, deps.Executor, tasks.Portfolio, log)

	submissions := []submission{
		{tasks.Portfolio, deps.Intervals.PortfolioRefresh},
		{tasks.Sold, deps.Intervals.SoldRefresh},
		{tasks.Sweep, deps.Intervals.CacheSweep},
	}
	if deps.LoadTask != nil {
		// Shared across tenants; only the first registration submits it.
		submissions = append(submissions, submission{deps.LoadTask, deps.Intervals.StrategyLoad})
	}
	submissions = append(submissions, submission{tasks.Marketplace, deps.Intervals.MarketplacePoll})

	for _, sub := range submissions {
		if err := s.Submit(sub.task, sub.period); err != nil {
			return nil, fmt.Errorf("failed to submit %s: %w", sub.task.Name(), err)
		}
	}

	log.Info().Str("tenant", account).Msg("Tenant tasks registered")
	return tasks, nil
}
