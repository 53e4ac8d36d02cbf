package di

import (
	"fmt"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/clients/remote"
	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/portfolio"
	"github.com/aristath/autoinvest/internal/sold"
	"github.com/aristath/autoinvest/internal/strategy"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/aristath/autoinvest/internal/work"
	"github.com/rs/zerolog"
)

// InitializeTenants builds one tenant per configured account and submits its tasks.
func InitializeTenants(c *Container, cfg *config.Config, log zerolog.Logger) error {
	policy, err := sold.ParseFailurePolicy(cfg.SoldFetchFailure)
	if err != nil {
		return err
	}
	c.Trackers = cache.NewRegistry[string, *sold.Tracker](cfg.TrackerLimit, nil)

	intervals := work.Intervals{
		PortfolioRefresh: cfg.PortfolioRefresh,
		SoldRefresh:      cfg.SoldTTL,
		CacheSweep:       cfg.CacheSweepInterval,
		StrategyLoad:     cfg.PortfolioRefresh,
		MarketplacePoll:  cfg.MarketplacePoll,
	}

	for _, acct := range cfg.Accounts {
		a, err := newAccount(c, cfg, acct, policy, log)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Username, err)
		}
		c.Tenants = append(c.Tenants, a)

		a.Tasks, err = work.RegisterTenant(c.Scheduler, work.TenantDeps{
			Tenant:    a.Tenant,
			Executor:  a.Executor,
			LoadTask:  c.LoadTask,
			Intervals: intervals,
		}, log)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Username, err)
		}
	}
	return nil
}

func newAccount(c *Container, cfg *config.Config, acct config.Account, policy sold.FailurePolicy, log zerolog.Logger) (*Account, error) {
	client := remote.NewClient(remote.Config{
		BaseURL:        cfg.APIURL,
		Token:          acct.Token,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	}, log.With().Str("tenant", acct.Username).Logger())

	var rc domain.RemoteClient = client
	if cfg.DryRun {
		rc = remote.NewDryRun(client, log)
	}

	session := domain.SessionInfo{Username: acct.Username, Name: acct.Username, DryRun: cfg.DryRun}
	tracker := c.Trackers.GetOrCreate(acct.Username, func(string) *sold.Tracker {
		return sold.New(rc, cfg.SoldTTL, policy, log)
	})

	t := tenant.New(session, cfg.ReadTimeout, tenant.Deps{
		Client:       rc,
		Store:        c.StateStore,
		Portfolio:    portfolio.New(rc, log),
		Loans:        cache.NewLoanCache(acct.Username, cfg.LoanCacheTTL, c.ClientDataRepo, log),
		Restrictions: cache.NewRestrictionsCache(acct.Username, cfg.LoanCacheTTL, c.ClientDataRepo, log),
		Sold:         tracker,
		Strategy:     c.Strategy,
		Sink:         c.EventManager,
	}, log)

	return &Account{
		Client:   client,
		Tenant:   t,
		Executor: strategy.NewExecutor("default", domain.MoneyFromDecimal(cfg.MinIncrement), log),
	}, nil
}
