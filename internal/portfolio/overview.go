package portfolio

import (
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Overview derives a read-only summary from one consistent view of balance and exposure.
func (p *Portfolio) Overview() domain.Overview {
	p.mu.Lock()
	balance := p.effectiveBalance()
	exposure := p.effectiveExposure()
	p.mu.Unlock()

	return buildOverview(balance, exposure, p.now())
}

func buildOverview(balance domain.Money, exposure domain.Exposure, now time.Time) domain.Overview {
	total := exposure.Total()
	ratings := domain.Ratings()

	overview := domain.Overview{
		Balance:   balance,
		Invested:  total.Invested,
		AtRisk:    total.AtRisk,
		Ratings:   make(map[domain.Rating]domain.RatingOverview, len(ratings)),
		Timestamp: now.UTC(),
	}

	rates := make([]float64, 0, len(ratings))
	weights := make([]float64, 0, len(ratings))
	for _, r := range ratings {
		a := exposure.Of(r)
		overview.Ratings[r] = domain.RatingOverview{
			Invested:    a.Invested,
			AtRisk:      a.AtRisk,
			Share:       a.Invested.Ratio(total.Invested),
			AtRiskRatio: a.AtRisk.Ratio(a.Invested),
		}
		if a.Invested.IsPositive() {
			rate, _ := r.InterestRate().Float64()
			rates = append(rates, rate)
			weights = append(weights, a.Invested.Float64())
		}
	}

	if len(rates) > 0 {
		overview.ExpectedYield = stat.Mean(rates, weights)
	}
	return overview
}
