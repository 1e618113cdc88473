package depreciation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MatureAfterMonths = 12

var (
	// NewItemRate applies while months_owned < MatureAfterMonths (~12.5%/year).
	NewItemRate = decimal.RequireFromString("0.0104")
	// MatureItemRate applies from the first anniversary on (~3%/year).
	MatureItemRate = decimal.RequireFromString("0.0025")
	// FloorFraction of the purchase price is the lowest value a holding can reach.
	FloorFraction = decimal.RequireFromString("0.05")
)

var (
	ErrNotFound             = errors.New("holding not found")
	ErrItemNotFound         = errors.New("catalog item not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

// Holding is a lifestyle item a player owns. PurchasePrice never changes after
// acquisition; CurrentValue is null for rows created before value tracking.
type Holding struct {
	ID                   uuid.UUID           `json:"id"`
	PlayerID             uuid.UUID           `json:"player_id"`
	ItemID               uuid.UUID           `json:"item_id"`
	ItemName             string              `json:"item_name"`
	Category             string              `json:"category"`
	PurchasePrice        decimal.Decimal     `json:"purchase_price"`
	MonthlyCost          decimal.Decimal     `json:"monthly_cost"`
	CurrentValue         decimal.NullDecimal `json:"current_value"`
	MonthsOwned          int                 `json:"months_owned"`
	PurchaseDate         time.Time           `json:"purchase_date"`
	LastDepreciationDate *time.Time          `json:"last_depreciation_date,omitempty"`
	IsActive             bool                `json:"is_active"`
}

// Value is the holding's effective value: CurrentValue when set, else PurchasePrice.
func (h Holding) Value() decimal.Decimal {
	if h.CurrentValue.Valid {
		return h.CurrentValue.Decimal
	}
	return h.PurchasePrice
}

type CatalogItem struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	BasePrice   decimal.Decimal `json:"base_price"`
	MonthlyCost decimal.Decimal `json:"monthly_cost"`
	Description string          `json:"description,omitempty"`
}

type LedgerEntry struct {
	PlayerID    uuid.UUID
	Type        string
	Category    string
	Amount      decimal.Decimal
	Description string
	Date        time.Time
}

type Result struct {
	CurrentValue       decimal.Decimal `json:"current_value"`
	DepreciationAmount decimal.Decimal `json:"depreciation_amount"`
	Rate               decimal.Decimal `json:"rate_used"`
}

func Floor(purchasePrice decimal.Decimal) decimal.Decimal {
	return purchasePrice.Mul(FloorFraction)
}

func RateFor(monthsOwned int) decimal.Decimal {
	if monthsOwned < MatureAfterMonths {
		return NewItemRate
	}
	return MatureItemRate
}

// Calculate returns one month of depreciation for h without touching storage.
// Inactive holdings, non-positive purchase prices and values at or below the
// floor produce a zero step.
func Calculate(h Holding) Result {
	value := h.Value()
	none := Result{CurrentValue: value, DepreciationAmount: decimal.Zero, Rate: decimal.Zero}
	if !h.IsActive || !h.PurchasePrice.IsPositive() {
		return none
	}
	floor := Floor(h.PurchasePrice)
	if value.LessThanOrEqual(floor) {
		return none
	}

	rate := RateFor(h.MonthsOwned)
	amount := value.Mul(rate)
	next := value.Sub(amount)
	if next.LessThan(floor) {
		amount = value.Sub(floor)
		next = floor
	}
	return Result{CurrentValue: next, DepreciationAmount: amount, Rate: rate}
}

// MonthsBetween counts calendar months from purchase to now, never below zero.
func MonthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months < 0 {
		return 0
	}
	return months
}

// SamePeriod reports whether last falls in the same calendar month as at.
func SamePeriod(last *time.Time, at time.Time) bool {
	if last == nil {
		return false
	}
	l, a := last.UTC(), at.UTC()
	return l.Year() == a.Year() && l.Month() == a.Month()
}
