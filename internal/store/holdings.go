package store

import (
	"context"
	"fmt"
	"time"

	"lifesim/internal/depreciation"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const holdingColumns = `
	pl.id, pl.player_id, pl.liability_id, li.name, li.category,
	pl.purchase_price, pl.monthly_cost, pl.current_value, pl.months_owned,
	pl.purchase_date, pl.last_depreciation_date, pl.is_active
`

const holdingFrom = `
	FROM lifesim.player_liabilities pl
	JOIN lifesim.liability_items li ON li.id = pl.liability_id
`

func scanHolding(row pgx.Row) (depreciation.Holding, error) {
	var h depreciation.Holding
	err := row.Scan(
		&h.ID, &h.PlayerID, &h.ItemID, &h.ItemName, &h.Category,
		&h.PurchasePrice, &h.MonthlyCost, &h.CurrentValue, &h.MonthsOwned,
		&h.PurchaseDate, &h.LastDepreciationDate, &h.IsActive,
	)
	return h, err
}

func collectHoldings(rows pgx.Rows) ([]depreciation.Holding, error) {
	defer rows.Close()
	out := make([]depreciation.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InTx implements depreciation.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx depreciation.Tx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&holdingTx{tx: tx})
	})
}

func (s *Store) Holding(ctx context.Context, id uuid.UUID) (depreciation.Holding, error) {
	h, err := scanHolding(s.db.QueryRow(ctx, `SELECT `+holdingColumns+holdingFrom+` WHERE pl.id = $1`, id))
	if err != nil {
		return depreciation.Holding{}, notFound(err, depreciation.ErrNotFound)
	}
	return h, nil
}

func (s *Store) Holdings(ctx context.Context, playerID uuid.UUID) ([]depreciation.Holding, error) {
	rows, err := s.db.Query(ctx, `SELECT `+holdingColumns+holdingFrom+`
		WHERE pl.player_id = $1 AND pl.is_active
		ORDER BY pl.purchase_date DESC, pl.id
	`, playerID)
	if err != nil {
		return nil, err
	}
	return collectHoldings(rows)
}

func (s *Store) Catalog(ctx context.Context) ([]depreciation.CatalogItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, category, base_price, monthly_cost, description
		FROM lifesim.liability_items
		ORDER BY base_price, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]depreciation.CatalogItem, 0)
	for rows.Next() {
		var it depreciation.CatalogItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.BasePrice, &it.MonthlyCost, &it.Description); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

var _ depreciation.Tx = (*holdingTx)(nil)

// holdingTx implements depreciation.Tx on a pgx transaction or savepoint.
type holdingTx struct {
	tx pgx.Tx
}

func (t *holdingTx) Savepoint(ctx context.Context, fn func(tx depreciation.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	defer sp.Rollback(ctx)
	if err := fn(&holdingTx{tx: sp}); err != nil {
		return err
	}
	return sp.Commit(ctx)
}

func (t *holdingTx) ClaimIdempotency(ctx context.Context, playerID uuid.UUID, key, action string) error {
	return claimIdempotency(ctx, t.tx, playerID, key, action, depreciation.ErrDuplicateIdempotency)
}

func (t *holdingTx) LockActiveHoldings(ctx context.Context, playerID *uuid.UUID) ([]depreciation.Holding, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+holdingColumns+holdingFrom+`
		WHERE pl.is_active AND ($1::uuid IS NULL OR pl.player_id = $1)
		ORDER BY pl.purchase_date, pl.id
		FOR UPDATE OF pl
	`, playerID)
	if err != nil {
		return nil, err
	}
	return collectHoldings(rows)
}

func (t *holdingTx) HoldingsMissingValue(ctx context.Context) ([]depreciation.Holding, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+holdingColumns+holdingFrom+`
		WHERE pl.current_value IS NULL
		ORDER BY pl.purchase_date, pl.id
		FOR UPDATE OF pl
	`)
	if err != nil {
		return nil, err
	}
	return collectHoldings(rows)
}

func (t *holdingTx) SaveDepreciation(ctx context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int, on time.Time) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE lifesim.player_liabilities
		SET current_value = $2, months_owned = $3, last_depreciation_date = $4::date
		WHERE id = $1 AND is_active
	`, id, value, monthsOwned, on)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return depreciation.ErrNotFound
	}
	return nil
}

func (t *holdingTx) InitValue(ctx context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE lifesim.player_liabilities
		SET current_value = $2, months_owned = $3
		WHERE id = $1 AND current_value IS NULL
	`, id, value, monthsOwned)
	return err
}

func (t *holdingTx) InsertHolding(ctx context.Context, h depreciation.Holding) (depreciation.Holding, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO lifesim.player_liabilities
			(player_id, liability_id, purchase_price, monthly_cost, purchase_date, is_active, current_value, months_owned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, h.PlayerID, h.ItemID, h.PurchasePrice, h.MonthlyCost, h.PurchaseDate, h.IsActive, h.CurrentValue, h.MonthsOwned).Scan(&h.ID)
	if err != nil {
		return depreciation.Holding{}, err
	}
	return h, nil
}

func (t *holdingTx) DeactivateHolding(ctx context.Context, id uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE lifesim.player_liabilities SET is_active = false WHERE id = $1`, id)
	return err
}

func (t *holdingTx) CatalogItem(ctx context.Context, id uuid.UUID) (depreciation.CatalogItem, error) {
	var it depreciation.CatalogItem
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, category, base_price, monthly_cost, description
		FROM lifesim.liability_items
		WHERE id = $1
	`, id).Scan(&it.ID, &it.Name, &it.Category, &it.BasePrice, &it.MonthlyCost, &it.Description)
	if err != nil {
		return depreciation.CatalogItem{}, notFound(err, depreciation.ErrItemNotFound)
	}
	return it, nil
}

func (t *holdingTx) LockBalance(ctx context.Context, playerID uuid.UUID) (decimal.Decimal, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO lifesim.balances (user_id, current_balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, playerID); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT current_balance
		FROM lifesim.balances
		WHERE user_id = $1
		FOR UPDATE
	`, playerID).Scan(&balance)
	return balance, err
}

func (t *holdingTx) SetBalance(ctx context.Context, playerID uuid.UUID, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE lifesim.balances
		SET current_balance = $2, updated_at = now()
		WHERE user_id = $1
	`, playerID, balance)
	return err
}

func (t *holdingTx) InsertLedgerEntry(ctx context.Context, e depreciation.LedgerEntry) (uuid.UUID, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO lifesim.transactions (user_id, type, category, amount, description, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.PlayerID, e.Type, e.Category, e.Amount, e.Description, e.Date).Scan(&id)
	return id, err
}

func (t *holdingTx) ScheduleRecurringCost(ctx context.Context, playerID, holdingID uuid.UUID, amount decimal.Decimal, due time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lifesim.monthly_deductions (player_id, deduction_type, amount, reference_id, deduction_date, status)
		VALUES ($1, 'liability_cost', $2, $3, $4::date, 'pending')
	`, playerID, amount, holdingID, due)
	return err
}

func (t *holdingTx) CancelRecurringCosts(ctx context.Context, holdingID uuid.UUID) (int64, error) {
	cmd, err := t.tx.Exec(ctx, `
		DELETE FROM lifesim.monthly_deductions
		WHERE reference_id = $1 AND deduction_type = 'liability_cost' AND status = 'pending'
	`, holdingID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
