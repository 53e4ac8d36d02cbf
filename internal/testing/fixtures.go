package testing

import (
	"github.com/aristath/autoinvest/internal/domain"
	"github.com/shopspring/decimal"
)

// NewLoanFixtures returns loans covering a spread of ratings.
func NewLoanFixtures() []domain.Loan {
	return []domain.Loan{
		{ID: 1, Name: "Kitchen renovation", Rating: domain.RatingAAA, Amount: domain.NewMoney(200000), RemainingInvestment: domain.NewMoney(150000), InterestRate: decimal.RequireFromString("0.0599"), TermInMonths: 60},
		{ID: 2, Name: "Used car", Rating: domain.RatingB, Amount: domain.NewMoney(120000), RemainingInvestment: domain.NewMoney(40000), InterestRate: decimal.RequireFromString("0.1349"), TermInMonths: 48},
		{ID: 3, Name: "Debt consolidation", Rating: domain.RatingD, Amount: domain.NewMoney(80000), RemainingInvestment: domain.NewMoney(80000), InterestRate: decimal.RequireFromString("0.1999"), TermInMonths: 84},
	}
}

// NewMarketplaceFixtures returns one primary-market loan and one
// secondary-market participation.
func NewMarketplaceFixtures() []domain.MarketplaceItem {
	return []domain.MarketplaceItem{
		{Kind: domain.ItemLoan, ID: 1, LoanID: 1, Rating: domain.RatingAAA, Available: domain.NewMoney(150000)},
		{Kind: domain.ItemParticipation, ID: 501, LoanID: 2, Rating: domain.RatingB, Available: domain.NewMoney(2500), Price: domain.NewMoney(2400)},
	}
}

// NewRestrictionsFixture returns the usual account limits.
func NewRestrictionsFixture() domain.Restrictions {
	return domain.Restrictions{
		MinimumInvestment: domain.NewMoney(200),
		InvestmentStep:    domain.NewMoney(200),
		MaximumInvestment: domain.NewMoney(5000),
	}
}
