package strategy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StaticConfig is the YAML form of a Static strategy:
//
//	name: balanced
//	investment: 200
//	targets:
//	  AAAAA: 0.05
//	  ...
//	  D: 0.05
type StaticConfig struct {
	Name       string                     `yaml:"name"`
	Investment domain.Money               `yaml:"investment"`
	Targets    map[string]decimal.Decimal `yaml:"targets"`
}

// Static invests a fixed amount into items whose rating is below its target
// share of the portfolio, and buys participations under the same rule. It
// never sells.
type Static struct {
	name       string
	investment domain.Money
	targets    map[domain.Rating]decimal.Decimal
}

// LoadStatic reads a Static strategy from a YAML file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}
	var cfg StaticConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
	}
	return NewStatic(cfg)
}

// NewStatic validates cfg. Every rating must have a target.
func NewStatic(cfg StaticConfig) (*Static, error) {
	if !cfg.Investment.IsPositive() {
		return nil, fmt.Errorf("strategy investment must be positive, got %s", cfg.Investment)
	}

	targets := make(map[domain.Rating]decimal.Decimal, len(cfg.Targets))
	for code, share := range cfg.Targets {
		r, err := domain.ParseRating(code)
		if err != nil {
			return nil, err
		}
		if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("target share of %s out of range: %s", r, share)
		}
		targets[r] = share
	}

	var missing []string
	for _, r := range domain.Ratings() {
		if _, ok := targets[r]; !ok {
			missing = append(missing, string(r))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("strategy does not cover ratings %s: %w", strings.Join(missing, ", "), domain.ErrInvariant)
	}

	name := cfg.Name
	if name == "" {
		name = "static"
	}
	return &Static{name: name, investment: cfg.Investment, targets: targets}, nil
}

func (s *Static) Name() string {
	return s.name
}

// Target returns the target share of r.
func (s *Static) Target(r domain.Rating) decimal.Decimal {
	return s.targets[r]
}

func (s *Static) Evaluate(_ context.Context, overview domain.Overview, restrictions domain.Restrictions, items []domain.MarketplaceItem) ([]domain.Operation, error) {
	invested := make(map[domain.Rating]domain.Money, len(overview.Ratings))
	for r, ro := range overview.Ratings {
		invested[r] = ro.Invested
	}
	total := overview.Invested
	balance := overview.Balance

	// Most underinvested ratings first; ties keep marketplace order.
	candidates := make([]domain.MarketplaceItem, len(items))
	copy(candidates, items)
	sort.SliceStable(candidates, func(i, j int) bool {
		return s.deficit(candidates[i].Rating, invested, total).GreaterThan(s.deficit(candidates[j].Rating, invested, total))
	})

	var ops []domain.Operation
	for _, item := range candidates {
		if !item.Rating.Valid() || !s.deficit(item.Rating, invested, total).IsPositive() {
			continue
		}

		var op domain.Operation
		switch item.Kind {
		case domain.ItemLoan:
			amount := s.loanAmount(item, restrictions)
			if !amount.IsPositive() {
				continue
			}
			op = domain.Operation{Kind: domain.OperationInvest, ItemID: item.ID, LoanID: item.LoanID, Rating: item.Rating, Amount: amount}
		case domain.ItemParticipation:
			if !item.Price.IsPositive() || item.Price.GreaterThan(s.investment) {
				continue
			}
			op = domain.Operation{Kind: domain.OperationPurchase, ItemID: item.ID, LoanID: item.LoanID, Rating: item.Rating, Amount: item.Price}
		default:
			continue
		}

		if op.Amount.GreaterThan(balance) {
			continue
		}
		balance = balance.Sub(op.Amount)
		invested[item.Rating] = invested[item.Rating].Add(op.Amount)
		total = total.Add(op.Amount)
		ops = append(ops, op)
	}
	return ops, nil
}

func (s *Static) deficit(r domain.Rating, invested map[domain.Rating]domain.Money, total domain.Money) decimal.Decimal {
	return s.targets[r].Sub(invested[r].Ratio(total))
}

// loanAmount is the configured investment clamped to the restrictions and
// the loan's remaining amount, rounded down to the investment step.
func (s *Static) loanAmount(item domain.MarketplaceItem, r domain.Restrictions) domain.Money {
	amount := s.investment
	if r.MaximumInvestment.IsPositive() {
		amount = domain.Min(amount, r.MaximumInvestment)
	}
	amount = domain.Min(amount, item.Available)
	if r.InvestmentStep.IsPositive() {
		steps := amount.Decimal().Div(r.InvestmentStep.Decimal()).Floor()
		amount = domain.MoneyFromDecimal(steps.Mul(r.InvestmentStep.Decimal()))
	}
	if amount.LessThan(r.MinimumInvestment) {
		return domain.Zero
	}
	return amount
}
