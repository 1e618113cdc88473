package advisory

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrActionBlocked = errors.New("action blocked by active mission")

// Permission flags of a mission constraint set.
const (
	CanChangeJob         = "can_change_job"
	CanBuyAssets         = "can_buy_assets"
	CanTakeLoans         = "can_take_loans"
	CanRentProperty      = "can_rent_property"
	CanSellAssets        = "can_sell_assets"
	CanBuyLifestyleItems = "can_buy_lifestyle_items"
)

// Constraints is the permission map an active mission applies to a player.
// Flags absent from the stored JSON default to allowed.
type Constraints struct {
	CanChangeJob         bool             `json:"can_change_job"`
	CanBuyAssets         bool             `json:"can_buy_assets"`
	CanTakeLoans         bool             `json:"can_take_loans"`
	CanRentProperty      bool             `json:"can_rent_property"`
	CanSellAssets        bool             `json:"can_sell_assets"`
	CanBuyLifestyleItems bool             `json:"can_buy_lifestyle_items"`
	AllowedAssetTypes    []string         `json:"allowed_asset_types,omitempty"`
	AllowedLoanTypes     []string         `json:"allowed_loan_types,omitempty"`
	MaxLoanAmount        *decimal.Decimal `json:"max_loan_amount,omitempty"`
	MaxMonthlySpending   *decimal.Decimal `json:"max_monthly_spending,omitempty"`
	IncomeMultiplier     float64          `json:"income_multiplier,omitempty"`
	ExpenseMultiplier    float64          `json:"expense_multiplier,omitempty"`
}

func AllowAll() Constraints {
	return Constraints{
		CanChangeJob:         true,
		CanBuyAssets:         true,
		CanTakeLoans:         true,
		CanRentProperty:      true,
		CanSellAssets:        true,
		CanBuyLifestyleItems: true,
	}
}

func (c *Constraints) UnmarshalJSON(b []byte) error {
	type plain Constraints
	out := plain(AllowAll())
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*c = Constraints(out)
	return nil
}

// Allows reports the named permission flag. Unknown names are allowed.
func (c Constraints) Allows(permission string) bool {
	switch permission {
	case CanChangeJob:
		return c.CanChangeJob
	case CanBuyAssets:
		return c.CanBuyAssets
	case CanTakeLoans:
		return c.CanTakeLoans
	case CanRentProperty:
		return c.CanRentProperty
	case CanSellAssets:
		return c.CanSellAssets
	case CanBuyLifestyleItems:
		return c.CanBuyLifestyleItems
	default:
		return true
	}
}

// RequiredPermission maps a trigger type to the permission its advice depends
// on. Informational triggers need none. Unknown trigger types also need none,
// so a new trigger is surfaced until it is added here.
func RequiredPermission(triggerType string) (string, bool) {
	switch triggerType {
	case HighCashRatio, PoorDiversification, StrongAssetGrowth, SingleIncomeSource,
		LowPassiveIncome, NoAssets:
		return CanBuyAssets, true
	case Overextension:
		return CanSellAssets, true
	case HighDebtToIncome:
		return CanTakeLoans, true
	case HighExpenseRatio:
		return CanRentProperty, true
	case StagnantIncome:
		return CanChangeJob, true
	case ExpensivePurchase:
		return CanBuyLifestyleItems, true
	case NetWorthGrowth, LowEmergencyFund, HighSavingsRate,
		NegativeCashFlow, PoorCreditScore, LowDebtRatio,
		Milestone10K, Inactivity, FinancialStress, FirstAsset, ConsistentProgress, DebtFree, Overworking,
		HighDebtTaken, PanicSelling:
		return "", false
	default:
		return "", false
	}
}

// Permits reports whether advice for triggerType may be shown under c.
func Permits(triggerType string, c Constraints) bool {
	perm, ok := RequiredPermission(triggerType)
	if !ok {
		return true
	}
	return c.Allows(perm)
}

// FilterByConstraints drops messages whose advice the active mission blocks
// and redirects blocked calls to action. With no active mission (nil) the
// input is returned unchanged.
func FilterByConstraints(msgs []Message, c *Constraints) []Message {
	if c == nil {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !Permits(m.TriggerType, *c) {
			continue
		}
		out = append(out, SafeCTA(m, *c))
	}
	return out
}

const (
	CTAMarketplace = "navigate_to_marketplace"
	CTALiabilities = "navigate_to_liabilities"
	CTAJobs        = "navigate_to_jobs"
	CTALoans       = "navigate_to_loans"
	CTAMissions    = "navigate_to_missions"
)

func ctaPermission(action string) string {
	switch action {
	case CTAMarketplace:
		return CanBuyAssets
	case CTALiabilities:
		return CanSellAssets
	case CTAJobs:
		return CanChangeJob
	case CTALoans:
		return CanTakeLoans
	}
	return ""
}

// SafeCTA points a blocked call to action at the mission details view instead.
func SafeCTA(m Message, c Constraints) Message {
	perm := ctaPermission(m.CTAAction)
	if perm == "" || c.Allows(perm) {
		return m
	}
	m.CTAAction = CTAMissions
	m.CTAText = "View Mission Details"
	m.CTAModified = true
	m.CTAReason = fmt.Sprintf("Action blocked by active mission (requires %s)", perm)
	return m
}

// Mission-gated player actions.
const (
	ActionBuyAsset         = "buy_asset"
	ActionTakeLoan         = "take_loan"
	ActionChangeJob        = "change_job"
	ActionRentProperty     = "rent_property"
	ActionSellAsset        = "sell_asset"
	ActionBuyLifestyleItem = "buy_lifestyle_item"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allowed() Decision { return Decision{Allowed: true} }

func blocked(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// CheckAction decides whether a player action is allowed under c.
func (c Constraints) CheckAction(action string, data ActionData) Decision {
	switch action {
	case ActionBuyAsset:
		if !c.CanBuyAssets {
			return blocked("Buying assets is not allowed during this mission")
		}
		if len(c.AllowedAssetTypes) > 0 && data.AssetType != "" &&
			!slices.Contains(c.AllowedAssetTypes, strings.ToLower(data.AssetType)) {
			return blocked("Only %s assets are allowed during this mission", strings.Join(c.AllowedAssetTypes, ", "))
		}
	case ActionTakeLoan:
		if !c.CanTakeLoans {
			return blocked("Taking loans is not allowed during this mission")
		}
		if len(c.AllowedLoanTypes) > 0 && data.LoanType != "" &&
			!slices.Contains(c.AllowedLoanTypes, strings.ToLower(data.LoanType)) {
			return blocked("Only %s loans are allowed during this mission", strings.Join(c.AllowedLoanTypes, ", "))
		}
		if c.MaxLoanAmount != nil && data.Amount.GreaterThan(*c.MaxLoanAmount) {
			return blocked("Loan amount exceeds mission limit of $%s", c.MaxLoanAmount.StringFixed(2))
		}
	case ActionChangeJob:
		if !c.CanChangeJob {
			return blocked("Changing jobs is not allowed during this mission")
		}
	case ActionRentProperty:
		if !c.CanRentProperty {
			return blocked("Renting property is not allowed during this mission")
		}
	case ActionSellAsset:
		if !c.CanSellAssets {
			return blocked("Selling assets is not allowed during this mission")
		}
	case ActionBuyLifestyleItem:
		if !c.CanBuyLifestyleItems {
			return blocked("Buying lifestyle items is not allowed during this mission")
		}
	}
	return allowed()
}
