// Package di provides dependency injection wiring and initialization.
package di

import (
	"errors"

	"github.com/aristath/autoinvest/internal/cache"
	"github.com/aristath/autoinvest/internal/clientdata"
	"github.com/aristath/autoinvest/internal/clients/remote"
	"github.com/aristath/autoinvest/internal/database"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/ledger"
	"github.com/aristath/autoinvest/internal/reliability"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/server"
	"github.com/aristath/autoinvest/internal/sold"
	"github.com/aristath/autoinvest/internal/state"
	"github.com/aristath/autoinvest/internal/strategy"
	"github.com/aristath/autoinvest/internal/tenant"
	"github.com/aristath/autoinvest/internal/work"
)

// Container holds every long-lived component of the daemon.
// It is created by Wire and released with Close.
type Container struct {
	// Databases
	LedgerDB     *database.DB
	ClientDataDB *database.DB

	// Repositories
	LedgerRepo     *ledger.Repository
	ClientDataRepo *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager
	Hub          *events.Hub

	StateStore *state.Store
	Scheduler  *scheduler.Scheduler
	Strategy   *strategy.Holder
	LoadTask   *strategy.LoadTask
	Trackers   *cache.Registry[string, *sold.Tracker]
	Tenants    []*Account

	Backup *reliability.BackupService
	Server *server.Server // nil when the status API is disabled

	unsubscribe []func()
}

// Account bundles the components that belong to one remote account.
type Account struct {
	Client   *remote.Client
	Tenant   *tenant.Remote
	Executor *strategy.Executor
	Tasks    *work.TenantTasks
}

// TenantList returns the tenants as the interface the server consumes.
func (c *Container) TenantList() []tenant.Tenant {
	out := make([]tenant.Tenant, 0, len(c.Tenants))
	for _, a := range c.Tenants {
		out = append(out, a.Tenant)
	}
	return out
}

// Databases returns every open database.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close releases clients, subscriptions and databases. The scheduler must
// already be shut down.
func (c *Container) Close() error {
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.unsubscribe = nil

	var errs []error
	for _, a := range c.Tenants {
		if err := a.Tenant.Close(); err != nil {
			errs = append(errs, err)
		}
		a.Client.Close()
	}
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
