package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Loan is a read-only remote entity. Treat as an immutable snapshot.
type Loan struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Rating              Rating          `json:"rating"`
	Amount              Money           `json:"amount"`
	RemainingInvestment Money           `json:"remainingInvestment"`
	InterestRate        decimal.Decimal `json:"interestRate"`
	TermInMonths        int             `json:"termInMonths"`
}

// ItemKind distinguishes primary loans from secondary market participations.
type ItemKind string

const (
	ItemLoan          ItemKind = "loan"
	ItemParticipation ItemKind = "participation"
)

// MarketplaceItem is a candidate for a strategy decision.
type MarketplaceItem struct {
	Kind      ItemKind `json:"kind"`
	ID        int64    `json:"id"`
	LoanID    int64    `json:"loanId"`
	Rating    Rating   `json:"rating"`
	Available Money    `json:"available"`
	Price     Money    `json:"price"`
}

// Key identifies the item across marketplace snapshots.
func (i MarketplaceItem) Key() string {
	return fmt.Sprintf("%s:%d", i.Kind, i.ID)
}

// OperationKind is what the remote service is asked to do.
type OperationKind string

const (
	OperationInvest   OperationKind = "invest"
	OperationPurchase OperationKind = "purchase"
	OperationSell     OperationKind = "sell"
)

// Operation is a strategy decision submitted to the remote service.
type Operation struct {
	Kind   OperationKind `json:"kind"`
	ItemID int64         `json:"itemId"`
	LoanID int64         `json:"loanId"`
	Rating Rating        `json:"rating"`
	Amount Money         `json:"amount"`
}

// Charges reports whether the operation debits the balance.
func (o Operation) Charges() bool {
	return o.Kind == OperationInvest || o.Kind == OperationPurchase
}

// ChargeKey identifies the simulated charge of this operation.
func (o Operation) ChargeKey() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.ItemID)
}

// Restrictions are the investment limits imposed by the remote service.
type Restrictions struct {
	MinimumInvestment Money `json:"minimumInvestment"`
	InvestmentStep    Money `json:"investmentStep"`
	MaximumInvestment Money `json:"maximumInvestment"`
}

// Amounts is the exposure of a single rating.
type Amounts struct {
	Invested Money `json:"invested"`
	AtRisk   Money `json:"atRisk"`
}

// Add sums two amounts.
func (a Amounts) Add(o Amounts) Amounts {
	return Amounts{Invested: a.Invested.Add(o.Invested), AtRisk: a.AtRisk.Add(o.AtRisk)}
}

// Exposure is the per-rating breakdown of committed money.
// Every rating is present. It is never mutated after construction.
type Exposure struct {
	byRating map[Rating]Amounts
}

// NewExposure copies the given amounts and fills missing ratings with zero.
// Unknown ratings are rejected.
func NewExposure(amounts map[Rating]Amounts) (Exposure, error) {
	m := make(map[Rating]Amounts, len(allRatings))
	for _, r := range allRatings {
		m[r] = Amounts{}
	}
	for r, a := range amounts {
		if !r.Valid() {
			return Exposure{}, fmt.Errorf("exposure for unknown rating %q: %w", r, ErrInvariant)
		}
		m[r] = a
	}
	return Exposure{byRating: m}, nil
}

// EmptyExposure has every rating at zero.
func EmptyExposure() Exposure {
	e, _ := NewExposure(nil)
	return e
}

// Of returns the amounts for a rating.
func (e Exposure) Of(r Rating) Amounts {
	return e.byRating[r]
}

// All returns a copy of the per-rating map.
func (e Exposure) All() map[Rating]Amounts {
	out := make(map[Rating]Amounts, len(e.byRating))
	for r, a := range e.byRating {
		out[r] = a
	}
	return out
}

// With returns a new exposure with delta added to rating r.
func (e Exposure) With(r Rating, delta Amounts) Exposure {
	out := e.All()
	if out == nil {
		out = EmptyExposure().All()
	}
	out[r] = out[r].Add(delta)
	return Exposure{byRating: out}
}

// Total sums invested and at-risk amounts across all ratings.
func (e Exposure) Total() Amounts {
	var total Amounts
	for _, a := range e.byRating {
		total = total.Add(a)
	}
	return total
}

// RatingOverview is the derived summary for one rating.
type RatingOverview struct {
	Invested    Money           `json:"invested"`
	AtRisk      Money           `json:"atRisk"`
	Share       decimal.Decimal `json:"share"`
	AtRiskRatio decimal.Decimal `json:"atRiskRatio"`
}

// Overview is a read-only account summary handed to strategies.
type Overview struct {
	Balance       Money                     `json:"balance"`
	Invested      Money                     `json:"invested"`
	AtRisk        Money                     `json:"atRisk"`
	Ratings       map[Rating]RatingOverview `json:"ratings"`
	ExpectedYield float64                   `json:"expectedYield"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// SessionInfo describes the account a tenant is bound to.
type SessionInfo struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	DryRun   bool   `json:"dryRun"`
}

// MarshalJSON renders the exposure as a rating-keyed object.
func (e Exposure) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.byRating)
}
