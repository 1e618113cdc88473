package advisory

import (
	"github.com/shopspring/decimal"
)

// Player actions that can draw an immediate mentor reaction, besides ActionTakeLoan.
const (
	ActionBuyLiability = "buy_liability"
	ActionSellAssets   = "sell_assets"
)

var (
	ExpensivePurchaseThreshold = decimal.NewFromInt(50000)
	HighDebtThreshold          = decimal.NewFromInt(100000)
)

const PanicSellShare = 0.5

// ActionData describes a single player action for the real-time and mission checks.
type ActionData struct {
	Cost           decimal.Decimal `json:"cost"`
	Amount         decimal.Decimal `json:"amount"`
	ItemName       string          `json:"item_name,omitempty"`
	PercentageSold float64         `json:"percentage_sold,omitempty"`
	AssetType      string          `json:"asset_type,omitempty"`
	LoanType       string          `json:"loan_type,omitempty"`
}

var realTimeBodies = map[string]string{
	ExpensivePurchase: "Sweetheart, I saw you bought a {item_name}. I know you worked hard, but remember - things don't bring lasting happiness. Financial freedom does. Are you sure this aligns with your goals?",
	HighDebtTaken:     "Hi {username}, that's a ${amount} loan. Let's make sure you have a solid repayment plan. High debt can become a trap if not managed carefully.",
	PanicSelling:      "Whoa {username}! You just sold {percentage_sold}% of your portfolio. Panic selling is how people lose wealth. What's driving this decision?",
}

// CheckRealTime returns the immediate reaction to a single action, if any.
// Unknown actions never react.
func CheckRealTime(action string, data ActionData) (Trigger, bool) {
	switch action {
	case ActionBuyLiability:
		if data.Cost.GreaterThan(ExpensivePurchaseThreshold) {
			return Trigger{
				Type:     ExpensivePurchase,
				Persona:  Emotional,
				Priority: 5,
				Data:     map[string]any{"item_name": data.ItemName, "cost": data.Cost},
			}, true
		}
	case ActionTakeLoan:
		if data.Amount.GreaterThan(HighDebtThreshold) {
			return Trigger{
				Type:     HighDebtTaken,
				Persona:  RiskAnalyst,
				Priority: 5,
				Data:     map[string]any{"amount": data.Amount},
			}, true
		}
	case ActionSellAssets:
		if data.PercentageSold > PanicSellShare {
			return Trigger{
				Type:     PanicSelling,
				Persona:  Strategic,
				Priority: 5,
				Data:     map[string]any{"percentage_sold": pct(data.PercentageSold)},
			}, true
		}
	}
	return Trigger{}, false
}
