package depreciation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lifesim/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Holding(ctx context.Context, id uuid.UUID) (Holding, error)
	Holdings(ctx context.Context, playerID uuid.UUID) ([]Holding, error)
	Catalog(ctx context.Context) ([]CatalogItem, error)
}

// Tx is the write side of Store. Implementations lock the rows they return
// from LockActiveHoldings and LockBalance until the transaction ends.
type Tx interface {
	// Savepoint runs fn in a nested transaction; an error rolls back only fn's writes.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error
	ClaimIdempotency(ctx context.Context, playerID uuid.UUID, key, action string) error

	LockActiveHoldings(ctx context.Context, playerID *uuid.UUID) ([]Holding, error)
	HoldingsMissingValue(ctx context.Context) ([]Holding, error)
	SaveDepreciation(ctx context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int, on time.Time) error
	InitValue(ctx context.Context, id uuid.UUID, value decimal.Decimal, monthsOwned int) error
	InsertHolding(ctx context.Context, h Holding) (Holding, error)
	DeactivateHolding(ctx context.Context, id uuid.UUID) error
	CatalogItem(ctx context.Context, id uuid.UUID) (CatalogItem, error)

	LockBalance(ctx context.Context, playerID uuid.UUID) (decimal.Decimal, error)
	SetBalance(ctx context.Context, playerID uuid.UUID, balance decimal.Decimal) error
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (uuid.UUID, error)
	ScheduleRecurringCost(ctx context.Context, playerID, holdingID uuid.UUID, amount decimal.Decimal, due time.Time) error
	CancelRecurringCosts(ctx context.Context, holdingID uuid.UUID) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, playerID uuid.UUID, kind, title, body string) error
}

type Engine struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(store Store, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		log:      logger.With("component", "depreciation"),
		now:      time.Now,
	}
}

type RunResult struct {
	UpdatedCount      int             `json:"updated_count"`
	Skipped           int             `json:"skipped"`
	Failed            int             `json:"failed"`
	TotalDepreciation decimal.Decimal `json:"total_depreciation"`
	Date              time.Time       `json:"date"`
}

// ApplyMonthly depreciates every active holding, or only playerID's when set.
// The run is one transaction with a savepoint per holding: a row that fails is
// rolled back, logged and counted in Failed while the rest still commit.
// Holdings already depreciated in the current calendar month are skipped.
func (e *Engine) ApplyMonthly(ctx context.Context, playerID *uuid.UUID) (RunResult, error) {
	runAt := e.now().UTC()
	var out RunResult
	err := e.store.InTx(ctx, func(tx Tx) error {
		out = RunResult{TotalDepreciation: decimal.Zero, Date: runAt}
		holdings, err := tx.LockActiveHoldings(ctx, playerID)
		if err != nil {
			return fmt.Errorf("load active holdings: %w", err)
		}
		for _, h := range holdings {
			if SamePeriod(h.LastDepreciationDate, runAt) {
				out.Skipped++
				continue
			}
			var step decimal.Decimal
			err := tx.Savepoint(ctx, func(tx Tx) error {
				var err error
				step, err = applyOne(ctx, tx, h, runAt)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				out.Failed++
				e.log.Error("depreciate holding failed", "holding_id", h.ID, "player_id", h.PlayerID, "err", err)
				continue
			}
			if step.IsPositive() {
				out.UpdatedCount++
				out.TotalDepreciation = out.TotalDepreciation.Add(step)
			}
		}
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}
	e.log.Info("monthly depreciation applied",
		"updated", out.UpdatedCount,
		"skipped", out.Skipped,
		"failed", out.Failed,
		"total", out.TotalDepreciation.StringFixed(money.Scale),
	)
	return out, nil
}

// applyOne persists one step and returns the stored decrease in value.
func applyOne(ctx context.Context, tx Tx, h Holding, runAt time.Time) (decimal.Decimal, error) {
	res := Calculate(h)
	if !res.DepreciationAmount.IsPositive() {
		if !h.CurrentValue.Valid {
			return decimal.Zero, tx.InitValue(ctx, h.ID, h.PurchasePrice, h.MonthsOwned)
		}
		return decimal.Zero, nil
	}

	prev := money.Cents(h.Value())
	next := money.Cents(res.CurrentValue)
	if floor := money.CentsUp(Floor(h.PurchasePrice)); next.LessThan(floor) {
		next = floor
	}
	step := prev.Sub(next)
	if !step.IsPositive() {
		return decimal.Zero, nil
	}
	if err := tx.SaveDepreciation(ctx, h.ID, next, h.MonthsOwned+1, runAt); err != nil {
		return decimal.Zero, err
	}
	return step, nil
}

type SellInput struct {
	HoldingID      uuid.UUID
	PlayerID       uuid.UUID
	IdempotencyKey string
}

type SaleResult struct {
	HoldingID        uuid.UUID       `json:"holding_id"`
	ItemName         string          `json:"item_name"`
	SaleValue        decimal.Decimal `json:"sale_value"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	DepreciationLoss decimal.Decimal `json:"depreciation_loss"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	Balance          decimal.Decimal `json:"balance"`
	// PortfolioShare is the sold value over the player's active holdings value before the sale.
	PortfolioShare float64 `json:"portfolio_share"`
}

// Sell credits the holding's current value to the player's balance and
// retires the holding. The row stays in place with is_active=false.
func (e *Engine) Sell(ctx context.Context, in SellInput) (SaleResult, error) {
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	var out SaleResult
	err := e.store.InTx(ctx, func(tx Tx) error {
		if err := tx.ClaimIdempotency(ctx, in.PlayerID, in.IdempotencyKey, "sell_holding"); err != nil {
			return err
		}
		owned, err := tx.LockActiveHoldings(ctx, &in.PlayerID)
		if err != nil {
			return err
		}
		var target *Holding
		total := decimal.Zero
		for i := range owned {
			total = total.Add(owned[i].Value())
			if owned[i].ID == in.HoldingID {
				target = &owned[i]
			}
		}
		if target == nil {
			return ErrNotFound
		}

		saleValue := money.Cents(target.Value())
		balance, err := tx.LockBalance(ctx, in.PlayerID)
		if err != nil {
			return err
		}
		balance = balance.Add(saleValue)
		if err := tx.SetBalance(ctx, in.PlayerID, balance); err != nil {
			return err
		}
		txID, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			PlayerID:    in.PlayerID,
			Type:        "income",
			Category:    "liability_sale",
			Amount:      saleValue,
			Description: "Sold " + target.ItemName,
			Date:        e.now().UTC(),
		})
		if err != nil {
			return err
		}
		if _, err := tx.CancelRecurringCosts(ctx, target.ID); err != nil {
			return err
		}
		if err := tx.DeactivateHolding(ctx, target.ID); err != nil {
			return err
		}

		out = SaleResult{
			HoldingID:        target.ID,
			ItemName:         target.ItemName,
			SaleValue:        saleValue,
			PurchasePrice:    target.PurchasePrice,
			DepreciationLoss: target.PurchasePrice.Sub(saleValue),
			TransactionID:    txID,
			Balance:          balance,
			PortfolioShare:   money.Ratio(target.Value(), total),
		}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	e.notify(ctx, in.PlayerID, "financial_move", "Item sold",
		fmt.Sprintf("You sold %s for $%s.", out.ItemName, money.Format(out.SaleValue)))
	return out, nil
}

type Preview struct {
	HoldingID              uuid.UUID       `json:"holding_id"`
	PlayerID               uuid.UUID       `json:"player_id"`
	ItemName               string          `json:"item_name"`
	CurrentValue           decimal.Decimal `json:"current_value"`
	PurchasePrice          decimal.Decimal `json:"purchase_price"`
	DepreciationPercentage float64         `json:"depreciation_percentage"`
	DepreciationAmount     decimal.Decimal `json:"depreciation_amount"`
	NextMonthValue         decimal.Decimal `json:"next_month_value"`
	NextMonthDepreciation  decimal.Decimal `json:"next_month_depreciation"`
	NextMonthRate          decimal.Decimal `json:"next_month_rate"`
	FloorValue             decimal.Decimal `json:"floor_value"`
	MonthsOwned            int             `json:"months_owned"`
	IsActive               bool            `json:"is_active"`
}

// Preview reports depreciation to date and the projected next step. Read only.
func (e *Engine) Preview(ctx context.Context, holdingID uuid.UUID) (Preview, error) {
	h, err := e.store.Holding(ctx, holdingID)
	if err != nil {
		return Preview{}, err
	}
	value := h.Value()
	lost := h.PurchasePrice.Sub(value)
	next := Calculate(h)
	pct := 0.0
	if h.PurchasePrice.IsPositive() {
		pct = money.Float(lost.Mul(decimal.NewFromInt(100)).DivRound(h.PurchasePrice, 2))
	}
	return Preview{
		HoldingID:              h.ID,
		PlayerID:               h.PlayerID,
		ItemName:               h.ItemName,
		CurrentValue:           money.Cents(value),
		PurchasePrice:          h.PurchasePrice,
		DepreciationPercentage: pct,
		DepreciationAmount:     money.Cents(lost),
		NextMonthValue:         money.Cents(next.CurrentValue),
		NextMonthDepreciation:  money.Cents(next.DepreciationAmount),
		NextMonthRate:          next.Rate,
		FloorValue:             money.CentsUp(Floor(h.PurchasePrice)),
		MonthsOwned:            h.MonthsOwned,
		IsActive:               h.IsActive,
	}, nil
}

// Backfill initialises value tracking on holdings that predate it: value
// starts at the purchase price and months_owned is derived from the purchase date.
func (e *Engine) Backfill(ctx context.Context) (int, error) {
	now := e.now().UTC()
	count := 0
	err := e.store.InTx(ctx, func(tx Tx) error {
		count = 0
		rows, err := tx.HoldingsMissingValue(ctx)
		if err != nil {
			return err
		}
		for _, h := range rows {
			if err := tx.InitValue(ctx, h.ID, h.PurchasePrice, MonthsBetween(h.PurchaseDate, now)); err != nil {
				return fmt.Errorf("backfill holding %s: %w", h.ID, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		e.log.Info("holdings backfilled", "count", count)
	}
	return count, nil
}

type PurchaseInput struct {
	PlayerID       uuid.UUID
	ItemID         uuid.UUID
	IdempotencyKey string
}

// Purchase buys a catalog item at its base price and schedules its monthly cost.
func (e *Engine) Purchase(ctx context.Context, in PurchaseInput) (Holding, error) {
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		in.IdempotencyKey = uuid.NewString()
	}
	now := e.now().UTC()
	var out Holding
	err := e.store.InTx(ctx, func(tx Tx) error {
		if err := tx.ClaimIdempotency(ctx, in.PlayerID, in.IdempotencyKey, "buy_liability"); err != nil {
			return err
		}
		item, err := tx.CatalogItem(ctx, in.ItemID)
		if err != nil {
			return err
		}
		price := money.Cents(item.BasePrice)
		balance, err := tx.LockBalance(ctx, in.PlayerID)
		if err != nil {
			return err
		}
		if balance.LessThan(price) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, money.Format(price), money.Format(balance))
		}
		if err := tx.SetBalance(ctx, in.PlayerID, balance.Sub(price)); err != nil {
			return err
		}
		if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
			PlayerID:    in.PlayerID,
			Type:        "expense",
			Category:    "liability_purchase",
			Amount:      price,
			Description: "Bought " + item.Name,
			Date:        now,
		}); err != nil {
			return err
		}
		out, err = tx.InsertHolding(ctx, Holding{
			PlayerID:      in.PlayerID,
			ItemID:        item.ID,
			ItemName:      item.Name,
			Category:      item.Category,
			PurchasePrice: price,
			MonthlyCost:   money.Cents(item.MonthlyCost),
			CurrentValue:  decimal.NewNullDecimal(price),
			PurchaseDate:  now,
			IsActive:      true,
		})
		if err != nil {
			return err
		}
		if item.MonthlyCost.IsPositive() {
			if err := tx.ScheduleRecurringCost(ctx, in.PlayerID, out.ID, money.Cents(item.MonthlyCost), now.AddDate(0, 1, 0)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Holding{}, err
	}

	e.notify(ctx, in.PlayerID, "financial_move", "Purchase complete",
		fmt.Sprintf("You bought %s for $%s. Upkeep is $%s/month.", out.ItemName, money.Format(out.PurchasePrice), money.Format(out.MonthlyCost)))
	return out, nil
}

func (e *Engine) Catalog(ctx context.Context) ([]CatalogItem, error) {
	return e.store.Catalog(ctx)
}

func (e *Engine) Holdings(ctx context.Context, playerID uuid.UUID) ([]Holding, error) {
	return e.store.Holdings(ctx, playerID)
}

func (e *Engine) notify(ctx context.Context, playerID uuid.UUID, kind, title, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, playerID, kind, title, body); err != nil {
		e.log.Warn("notification failed", "player_id", playerID, "kind", kind, "err", err)
	}
}
