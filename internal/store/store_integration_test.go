//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/db"
	"lifesim/internal/depreciation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with a throwaway database:
//
//	LIFESIM_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/store/
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("LIFESIM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LIFESIM_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	st := New(pool, nil)
	require.NoError(t, st.SeedDefaults(ctx))
	return st
}

func newPlayer(t *testing.T, st *Store) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, st.EnsurePlayer(context.Background(), id, id.String()[:8]+"@example.com", ""))
	t.Cleanup(func() {
		_, _ = st.db.Exec(context.Background(), `DELETE FROM lifesim.profiles WHERE user_id = $1`, id)
	})
	return id
}

func catalogItem(t *testing.T, st *Store, name string) depreciation.CatalogItem {
	t.Helper()
	items, err := st.Catalog(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		if it.Name == name {
			return it
		}
	}
	t.Fatalf("catalog item %q not seeded", name)
	return depreciation.CatalogItem{}
}

func TestIntegrationDepreciationLifecycle(t *testing.T) {
	st := newIntegrationStore(t)
	ctx := context.Background()
	player := newPlayer(t, st)
	engine := depreciation.NewEngine(st, nil, nil)
	item := catalogItem(t, st, "Designer Wardrobe")

	h, err := engine.Purchase(ctx, depreciation.PurchaseInput{PlayerID: player, ItemID: item.ID, IdempotencyKey: "buy-1"})
	require.NoError(t, err)
	assert.True(t, h.PurchasePrice.Equal(decimal.NewFromInt(8000)))

	_, err = engine.Purchase(ctx, depreciation.PurchaseInput{PlayerID: player, ItemID: item.ID, IdempotencyKey: "buy-1"})
	require.ErrorIs(t, err, depreciation.ErrDuplicateIdempotency)

	run, err := engine.ApplyMonthly(ctx, &player)
	require.NoError(t, err)
	assert.Equal(t, 1, run.UpdatedCount)
	assert.True(t, run.TotalDepreciation.Equal(decimal.RequireFromString("83.20")), run.TotalDepreciation.String())

	got, err := st.Holding(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, got.Value().Equal(decimal.RequireFromString("7916.80")), got.Value().String())
	assert.Equal(t, 1, got.MonthsOwned)

	rerun, err := engine.ApplyMonthly(ctx, &player)
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.UpdatedCount)
	assert.Equal(t, 1, rerun.Skipped)

	sale, err := engine.Sell(ctx, depreciation.SellInput{HoldingID: h.ID, PlayerID: player})
	require.NoError(t, err)
	assert.True(t, sale.SaleValue.Equal(decimal.RequireFromString("7916.80")))
	assert.True(t, sale.Balance.Equal(decimal.RequireFromString("9916.80")), sale.Balance.String())

	held, err := st.Holdings(ctx, player)
	require.NoError(t, err)
	assert.Empty(t, held)

	f, err := st.LoadFinancials(ctx, player, time.Now())
	require.NoError(t, err)
	assert.True(t, f.Cash.Equal(decimal.RequireFromString("9916.80")))
	assert.True(t, f.LifestyleValue.IsZero())
	assert.True(t, f.Ledger.Income.Equal(decimal.RequireFromString("7916.80")))
	assert.True(t, f.Ledger.Expenses.Equal(decimal.NewFromInt(8000)))
}

func TestIntegrationMarkFollowedAwardsTemplateReward(t *testing.T) {
	st := newIntegrationStore(t)
	ctx := context.Background()
	player := newPlayer(t, st)

	mentor, err := st.MentorByPersona(ctx, advisory.Strategic)
	require.NoError(t, err)
	tmpl, err := st.Template(ctx, mentor.ID, advisory.HighCashRatio)
	require.NoError(t, err)
	require.Positive(t, tmpl.PointsReward)

	linked, err := st.RecordInteraction(ctx, advisory.Interaction{
		PlayerID: player, MentorID: mentor.ID, MessageID: &tmpl.ID,
		Content: "put your cash to work", TriggerType: advisory.HighCashRatio, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	bare, err := st.RecordInteraction(ctx, advisory.Interaction{
		PlayerID: player, MentorID: mentor.ID,
		Content: "hello", TriggerType: advisory.HighCashRatio, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	out, err := st.MarkFollowed(ctx, player, linked.ID, 1, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, out.ActionTaken)
	assert.Equal(t, tmpl.PointsReward, out.PointsEarned)

	again, err := st.MarkFollowed(ctx, player, linked.ID, 1, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, tmpl.PointsReward, again.PointsEarned)

	out, err = st.MarkFollowed(ctx, player, bare.ID, 7, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 7, out.PointsEarned)

	_, err = st.MarkFollowed(ctx, uuid.New(), linked.ID, 1, time.Now().UTC())
	require.ErrorIs(t, err, advisory.ErrNotFound)

	p, err := st.Profile(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, tmpl.PointsReward+7, p.ExperiencePoints)
}
