package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExposure_FillsEveryRating(t *testing.T) {
	e, err := NewExposure(map[Rating]Amounts{
		RatingA: {Invested: NewMoney(500), AtRisk: NewMoney(100)},
	})
	require.NoError(t, err)

	all := e.All()
	assert.Len(t, all, len(Ratings()))
	assert.True(t, e.Of(RatingA).Invested.Equal(NewMoney(500)))
	assert.True(t, e.Of(RatingD).Invested.IsZero())
}

func TestNewExposure_RejectsUnknownRating(t *testing.T) {
	_, err := NewExposure(map[Rating]Amounts{"Z": {}})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestExposure_WithDoesNotMutate(t *testing.T) {
	base := EmptyExposure()
	next := base.With(RatingB, Amounts{Invested: NewMoney(200)})

	assert.True(t, base.Of(RatingB).Invested.IsZero())
	assert.True(t, next.Of(RatingB).Invested.Equal(NewMoney(200)))
}

func TestExposure_AllReturnsCopy(t *testing.T) {
	e := EmptyExposure()
	m := e.All()
	m[RatingA] = Amounts{Invested: NewMoney(1)}
	assert.True(t, e.Of(RatingA).Invested.IsZero())
}

func TestExposure_Total(t *testing.T) {
	e, err := NewExposure(map[Rating]Amounts{
		RatingA: {Invested: NewMoney(500), AtRisk: NewMoney(100)},
		RatingC: {Invested: NewMoney(300), AtRisk: NewMoney(50)},
	})
	require.NoError(t, err)

	total := e.Total()
	assert.True(t, total.Invested.Equal(NewMoney(800)))
	assert.True(t, total.AtRisk.Equal(NewMoney(150)))
}

func TestOperation_Charges(t *testing.T) {
	assert.True(t, Operation{Kind: OperationInvest}.Charges())
	assert.True(t, Operation{Kind: OperationPurchase}.Charges())
	assert.False(t, Operation{Kind: OperationSell}.Charges())
	assert.Equal(t, "invest:7", Operation{Kind: OperationInvest, ItemID: 7}.ChargeKey())
}

func TestMarketplaceItem_Key(t *testing.T) {
	assert.Equal(t, "loan:1", MarketplaceItem{Kind: ItemLoan, ID: 1}.Key())
	assert.Equal(t, "participation:1", MarketplaceItem{Kind: ItemParticipation, ID: 1}.Key())
}
