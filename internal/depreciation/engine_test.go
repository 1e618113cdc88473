package depreciation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mock.Mock
}

func (n *recordingNotifier) Notify(ctx context.Context, playerID uuid.UUID, kind, title, body string) error {
	args := n.Called(ctx, playerID, kind, title, body)
	return args.Error(0)
}

func newTestEngine(store Store, at time.Time) *Engine {
	e := NewEngine(store, nil, nil)
	e.now = func() time.Time { return at }
	return e
}

var runDay = time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)

func TestApplyMonthlyFirstStep(t *testing.T) {
	store := newMemStore()
	h := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("10000"), CurrentValue: decimal.NewNullDecimal(d("10000")), IsActive: true, PurchaseDate: runDay.AddDate(0, -1, 0)})

	res, err := newTestEngine(store, runDay).ApplyMonthly(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, "104.00", res.TotalDepreciation.StringFixed(2))

	got := store.holdings[h.ID]
	assert.Equal(t, "9896.00", got.Value().StringFixed(2))
	assert.Equal(t, 1, got.MonthsOwned)
	require.NotNil(t, got.LastDepreciationDate)
	assert.True(t, SamePeriod(got.LastDepreciationDate, runDay))
}

func TestApplyMonthlyCrossesTwelveMonthBoundary(t *testing.T) {
	store := newMemStore()
	h := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("10000"), IsActive: true})

	want := d("10000")
	for period := 1; period <= 13; period++ {
		rate := NewItemRate
		if period >= 13 {
			rate = MatureItemRate
		}
		want = want.Sub(want.Mul(rate)).Round(2)

		at := runDay.AddDate(0, period-1, 0)
		res, err := newTestEngine(store, at).ApplyMonthly(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.UpdatedCount, "period %d", period)

		got := store.holdings[h.ID]
		require.Equal(t, want.StringFixed(2), got.Value().StringFixed(2), "period %d", period)
		require.Equal(t, period, got.MonthsOwned)
	}
}

func TestApplyMonthlySamePeriodGuard(t *testing.T) {
	store := newMemStore()
	h := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("5000"), IsActive: true})
	e := newTestEngine(store, runDay)

	_, err := e.ApplyMonthly(context.Background(), nil)
	require.NoError(t, err)
	after := store.holdings[h.ID]

	e.now = func() time.Time { return runDay.Add(10 * 24 * time.Hour) }
	res, err := e.ApplyMonthly(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, after, store.holdings[h.ID])
}

func TestApplyMonthlyIsolatesFailedHolding(t *testing.T) {
	store := newMemStore()
	good := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("10000"), IsActive: true, PurchaseDate: runDay.AddDate(0, -3, 0)})
	bad := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("8000"), CurrentValue: decimal.NewNullDecimal(d("7000")), MonthsOwned: 4, IsActive: true, PurchaseDate: runDay.AddDate(0, -2, 0)})
	store.failSave[bad.ID] = true

	res, err := newTestEngine(store, runDay).ApplyMonthly(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "104.00", res.TotalDepreciation.StringFixed(2))

	assert.Equal(t, "9896.00", store.holdings[good.ID].Value().StringFixed(2))
	rolledBack := store.holdings[bad.ID]
	assert.Equal(t, "7000.00", rolledBack.Value().StringFixed(2))
	assert.Equal(t, 4, rolledBack.MonthsOwned)
	assert.Nil(t, rolledBack.LastDepreciationDate)
}

func TestApplyMonthlyScopesToPlayerAndSkipsInactive(t *testing.T) {
	store := newMemStore()
	player := uuid.New()
	mine := store.add(Holding{PlayerID: player, PurchasePrice: d("1000"), IsActive: true})
	sold := store.add(Holding{PlayerID: player, PurchasePrice: d("1000"), CurrentValue: decimal.NewNullDecimal(d("900")), MonthsOwned: 3, IsActive: false})
	other := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("1000"), IsActive: true})

	res, err := newTestEngine(store, runDay).ApplyMonthly(context.Background(), &player)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 1, store.holdings[mine.ID].MonthsOwned)
	assert.Equal(t, "900.00", store.holdings[sold.ID].Value().StringFixed(2))
	assert.Equal(t, 3, store.holdings[sold.ID].MonthsOwned)
	assert.False(t, store.holdings[other.ID].CurrentValue.Valid)
}

func TestApplyMonthlyFloorHoldingUnchanged(t *testing.T) {
	store := newMemStore()
	h := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("1000"), CurrentValue: decimal.NewNullDecimal(d("50")), MonthsOwned: 200, IsActive: true})

	res, err := newTestEngine(store, runDay).ApplyMonthly(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, "50.00", store.holdings[h.ID].Value().StringFixed(2))
	assert.Equal(t, 200, store.holdings[h.ID].MonthsOwned)
}

func TestSellCreditsValueAndRetiresHolding(t *testing.T) {
	store := newMemStore()
	player := uuid.New()
	h := store.add(Holding{PlayerID: player, ItemName: "Sedan", PurchasePrice: d("30000"), CurrentValue: decimal.NewNullDecimal(d("27500.55")), IsActive: true})
	store.add(Holding{PlayerID: player, ItemName: "Bike", PurchasePrice: d("2500"), CurrentValue: decimal.NewNullDecimal(d("2500")), IsActive: true})
	store.balances[player] = d("100")
	store.deductions[h.ID] = 2

	notifier := new(recordingNotifier)
	notifier.On("Notify", mock.Anything, player, "financial_move", "Item sold", mock.Anything).Return(errors.New("push down"))
	e := NewEngine(store, notifier, nil)

	res, err := e.Sell(context.Background(), SellInput{HoldingID: h.ID, PlayerID: player, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "27500.55", res.SaleValue.StringFixed(2))
	assert.Equal(t, "2499.45", res.DepreciationLoss.StringFixed(2))
	assert.Equal(t, "27600.55", store.balances[player].StringFixed(2))
	assert.InDelta(t, 27500.55/30000.55, res.PortfolioShare, 1e-6)
	assert.False(t, store.holdings[h.ID].IsActive)
	assert.Zero(t, store.deductions[h.ID])

	require.Len(t, store.ledger, 1)
	assert.Equal(t, "income", store.ledger[0].Type)
	assert.Equal(t, "liability_sale", store.ledger[0].Category)
	notifier.AssertExpectations(t)

	// sold holdings never depreciate again
	run, err := newTestEngine(store, runDay).ApplyMonthly(context.Background(), &player)
	require.NoError(t, err)
	assert.Equal(t, 1, run.UpdatedCount)
	assert.Equal(t, "27500.55", store.holdings[h.ID].Value().StringFixed(2))
}

func TestSellErrors(t *testing.T) {
	store := newMemStore()
	player := uuid.New()
	h := store.add(Holding{PlayerID: player, PurchasePrice: d("1000"), IsActive: true})
	e := NewEngine(store, nil, nil)

	_, err := e.Sell(context.Background(), SellInput{HoldingID: h.ID, PlayerID: uuid.New(), IdempotencyKey: "a"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Sell(context.Background(), SellInput{HoldingID: h.ID, PlayerID: player, IdempotencyKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", store.balances[player].StringFixed(2), "never-depreciated holding sells at purchase price")

	_, err = e.Sell(context.Background(), SellInput{HoldingID: h.ID, PlayerID: player, IdempotencyKey: "c"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Sell(context.Background(), SellInput{HoldingID: h.ID, PlayerID: player, IdempotencyKey: "b"})
	assert.ErrorIs(t, err, ErrDuplicateIdempotency)
}

type previewOnlyStore struct {
	mock.Mock
}

func (s *previewOnlyStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	args := s.Called(ctx, fn)
	return args.Error(0)
}

func (s *previewOnlyStore) Holding(ctx context.Context, id uuid.UUID) (Holding, error) {
	args := s.Called(ctx, id)
	return args.Get(0).(Holding), args.Error(1)
}

func (s *previewOnlyStore) Holdings(ctx context.Context, playerID uuid.UUID) ([]Holding, error) {
	args := s.Called(ctx, playerID)
	return args.Get(0).([]Holding), args.Error(1)
}

func (s *previewOnlyStore) Catalog(ctx context.Context) ([]CatalogItem, error) {
	args := s.Called(ctx)
	return args.Get(0).([]CatalogItem), args.Error(1)
}

func TestPreviewIsReadOnly(t *testing.T) {
	id := uuid.New()
	store := new(previewOnlyStore)
	store.On("Holding", mock.Anything, id).Return(Holding{
		ID:            id,
		PurchasePrice: d("10000"),
		CurrentValue:  decimal.NewNullDecimal(d("9000")),
		MonthsOwned:   12,
		IsActive:      true,
	}, nil)

	p, err := NewEngine(store, nil, nil).Preview(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "9000.00", p.CurrentValue.StringFixed(2))
	assert.Equal(t, "1000.00", p.DepreciationAmount.StringFixed(2))
	assert.Equal(t, 10.0, p.DepreciationPercentage)
	assert.Equal(t, "8977.50", p.NextMonthValue.StringFixed(2))
	assert.Equal(t, "22.50", p.NextMonthDepreciation.StringFixed(2))
	assert.Equal(t, "500.00", p.FloorValue.StringFixed(2))

	store.AssertNotCalled(t, "InTx", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestPreviewNotFound(t *testing.T) {
	store := new(previewOnlyStore)
	store.On("Holding", mock.Anything, mock.Anything).Return(Holding{}, ErrNotFound)
	_, err := NewEngine(store, nil, nil).Preview(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackfill(t *testing.T) {
	store := newMemStore()
	old := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("4000"), PurchaseDate: time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC), IsActive: true})
	future := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("900"), PurchaseDate: runDay.AddDate(0, 2, 0), IsActive: true})
	tracked := store.add(Holding{PlayerID: uuid.New(), PurchasePrice: d("700"), CurrentValue: decimal.NewNullDecimal(d("650")), MonthsOwned: 2, IsActive: true})

	n, err := newTestEngine(store, runDay).Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "4000.00", store.holdings[old.ID].Value().StringFixed(2))
	assert.Equal(t, 15, store.holdings[old.ID].MonthsOwned)
	assert.True(t, store.holdings[old.ID].CurrentValue.Valid)
	assert.Nil(t, store.holdings[old.ID].LastDepreciationDate)
	assert.Equal(t, 0, store.holdings[future.ID].MonthsOwned)
	assert.Equal(t, 2, store.holdings[tracked.ID].MonthsOwned)
}

func TestPurchase(t *testing.T) {
	store := newMemStore()
	player := uuid.New()
	item := CatalogItem{ID: uuid.New(), Name: "Speedboat", Category: "boat", BasePrice: d("60000"), MonthlyCost: d("450")}
	store.catalog[item.ID] = item
	store.balances[player] = d("65000")
	e := newTestEngine(store, runDay)

	h, err := e.Purchase(context.Background(), PurchaseInput{PlayerID: player, ItemID: item.ID, IdempotencyKey: "buy-1"})
	require.NoError(t, err)
	assert.True(t, h.IsActive)
	assert.Equal(t, 0, h.MonthsOwned)
	assert.Equal(t, "60000.00", h.Value().StringFixed(2))
	assert.Equal(t, "5000.00", store.balances[player].StringFixed(2))
	assert.Equal(t, 1, store.deductions[h.ID])
	require.Len(t, store.ledger, 1)
	assert.Equal(t, "liability_purchase", store.ledger[0].Category)

	_, err = e.Purchase(context.Background(), PurchaseInput{PlayerID: player, ItemID: item.ID, IdempotencyKey: "buy-2"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "5000.00", store.balances[player].StringFixed(2))

	_, err = e.Purchase(context.Background(), PurchaseInput{PlayerID: player, ItemID: uuid.New(), IdempotencyKey: "buy-3"})
	assert.ErrorIs(t, err, ErrItemNotFound)
}
