// Package work binds tenants and shared maintenance to the scheduler.
//
// # Per-tenant tasks
//
// RegisterTenant submits, for one account:
//   - portfolio:refresh:<account>: reloads balance and exposure (AUTOINVEST_PORTFOLIO_REFRESH)
//   - sold:refresh:<account>: refreshes the sold participations snapshot (AUTOINVEST_SOLD_TTL)
//   - cache:sweep:<account>: drops expired loan, restriction and sold entries (AUTOINVEST_CACHE_SWEEP_INTERVAL)
//   - strategy:load: reloads the strategy file, shared by every tenant
//   - marketplace:poll:<account>: the decision loop (AUTOINVEST_MARKETPLACE_POLL). It depends
//     on portfolio:refresh:<account>, which is therefore submitted first. Both start
//     immediately, so the first poll may still see an empty portfolio.
//
// # Shared tasks
//
// RegisterShared submits client data cleanup and database maintenance every 24 hours and the
// backup on its cron schedule.
package work
