package advisory

import (
	"math"
	"sort"
)

type Persona string

const (
	Strategic   Persona = "strategic"
	RiskAnalyst Persona = "risk_analyst"
	Emotional   Persona = "emotional"
)

func (p Persona) Valid() bool {
	switch p {
	case Strategic, RiskAnalyst, Emotional:
		return true
	}
	return false
}

// Trigger types produced by Check and CheckRealTime.
const (
	HighCashRatio       = "high_cash_ratio"
	PoorDiversification = "poor_diversification"
	NetWorthGrowth      = "net_worth_growth"
	Overextension       = "overextension"
	LowEmergencyFund    = "low_emergency_fund"
	StrongAssetGrowth   = "strong_asset_growth"
	SingleIncomeSource  = "single_income_source"
	HighSavingsRate     = "high_savings_rate"

	HighDebtToIncome = "high_debt_to_income"
	LowPassiveIncome = "low_passive_income"
	HighExpenseRatio = "high_expense_ratio"
	NegativeCashFlow = "negative_cash_flow"
	PoorCreditScore  = "poor_credit_score"
	NoAssets         = "no_assets"
	LowDebtRatio     = "low_debt_ratio"
	StagnantIncome   = "stagnant_income"

	Milestone10K       = "milestone_10k"
	Inactivity         = "inactivity"
	FinancialStress    = "financial_stress"
	FirstAsset         = "first_asset"
	ConsistentProgress = "consistent_progress"
	DebtFree           = "debt_free"
	Overworking        = "overworking"

	ExpensivePurchase = "expensive_purchase"
	HighDebtTaken     = "high_debt_taken"
	PanicSelling      = "panic_selling"
)

// Trigger is one matched advisory rule. Priority runs 1..5, 5 most urgent.
type Trigger struct {
	Type     string         `json:"type"`
	Persona  Persona        `json:"mentor_role"`
	Priority int            `json:"priority"`
	Data     map[string]any `json:"data"`
}

type rule struct {
	trigger  string
	persona  Persona
	priority int
	when     func(m Metrics) bool
	data     func(m Metrics) map[string]any
}

func pct(v float64) int {
	return int(v * 100)
}

// rules is evaluated in order; every match is reported.
var rules = []rule{
	{HighCashRatio, Strategic, 4,
		func(m Metrics) bool { return m.CashRatio > 0.5 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"cash_amount":     m.Cash,
				"cash_percentage": pct(m.CashRatio),
				"inflation_loss":  int(m.Cash * 0.03),
			}
		}},
	{PoorDiversification, Strategic, 4,
		func(m Metrics) bool { return m.AssetConcentration > 0.7 },
		func(m Metrics) map[string]any {
			return map[string]any{"concentration": pct(m.AssetConcentration)}
		}},
	{NetWorthGrowth, Strategic, 3,
		func(m Metrics) bool { return m.NetWorthGrowthPercentage > 0.2 },
		func(m Metrics) map[string]any {
			return map[string]any{"growth_percentage": pct(m.NetWorthGrowthPercentage)}
		}},
	{Overextension, Strategic, 5,
		func(m Metrics) bool { return m.TotalAssets > 0 && m.TotalLiabilities/m.TotalAssets > 0.4 },
		func(m Metrics) map[string]any {
			return map[string]any{"liability_percentage": pct(m.TotalLiabilities / m.TotalAssets)}
		}},
	{LowEmergencyFund, Strategic, 5,
		func(m Metrics) bool { return m.MonthlyIncome > 0 && m.Cash/m.MonthlyIncome < 3 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"emergency_months": math.Round(m.Cash/m.MonthlyIncome*10) / 10,
				"cash_amount":      m.Cash,
				"monthly_expenses": m.MonthlyIncome,
			}
		}},
	{StrongAssetGrowth, Strategic, 3,
		func(m Metrics) bool { return m.AssetGrowthPercentage > 0.15 },
		func(m Metrics) map[string]any {
			return map[string]any{"growth_percentage": pct(m.AssetGrowthPercentage)}
		}},
	{SingleIncomeSource, Strategic, 4,
		func(m Metrics) bool { return m.IncomeSourcesCount == 1 },
		func(m Metrics) map[string]any {
			return map[string]any{"income_sources": 1}
		}},
	{HighSavingsRate, Strategic, 3,
		func(m Metrics) bool { return m.SavingsRate > 0.3 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"savings_percentage": pct(m.SavingsRate),
				"monthly_savings":    m.MonthlySavings,
			}
		}},

	{HighDebtToIncome, RiskAnalyst, 5,
		func(m Metrics) bool { return m.DebtToIncomeRatio > 0.4 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"debt_percentage": pct(m.DebtToIncomeRatio),
				"monthly_debt":    m.MonthlyDebtPayments,
			}
		}},
	{LowPassiveIncome, RiskAnalyst, 4,
		func(m Metrics) bool { return m.PassiveIncomeRatio < 0.2 && m.MonthlyIncome > 0 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"passive_income":     m.PassiveIncome,
				"passive_percentage": pct(m.PassiveIncomeRatio),
			}
		}},
	{HighExpenseRatio, RiskAnalyst, 4,
		func(m Metrics) bool { return m.ExpenseRatio > 0.8 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"expense_percentage": pct(m.ExpenseRatio),
				"total_expenses":     m.TotalExpenses,
				"monthly_income":     m.MonthlyIncome,
			}
		}},
	{NegativeCashFlow, RiskAnalyst, 5,
		func(m Metrics) bool { return m.CashFlow < 0 },
		func(m Metrics) map[string]any {
			return map[string]any{
				"deficit":          math.Abs(m.CashFlow),
				"monthly_expenses": m.TotalExpenses,
				"monthly_income":   m.MonthlyIncome,
			}
		}},
	{PoorCreditScore, RiskAnalyst, 4,
		func(m Metrics) bool { return m.CreditScore < 650 },
		func(m Metrics) map[string]any {
			return map[string]any{"credit_score": m.CreditScore}
		}},
	{NoAssets, RiskAnalyst, 5,
		func(m Metrics) bool { return m.TotalAssets == 0 },
		func(m Metrics) map[string]any {
			return map[string]any{"total_assets": 0}
		}},
	{LowDebtRatio, RiskAnalyst, 3,
		func(m Metrics) bool { return m.DebtToIncomeRatio > 0 && m.DebtToIncomeRatio < 0.2 },
		func(m Metrics) map[string]any {
			return map[string]any{"debt_percentage": pct(m.DebtToIncomeRatio)}
		}},
	{StagnantIncome, RiskAnalyst, 4,
		func(m Metrics) bool { return m.IncomeStagnantMonths >= StagnantAfterMonths },
		func(m Metrics) map[string]any {
			return map[string]any{"months_stagnant": m.IncomeStagnantMonths}
		}},

	{Milestone10K, Emotional, 3,
		func(m Metrics) bool { return m.NetWorth >= 10000 && m.NetWorth < 15000 },
		func(m Metrics) map[string]any {
			return map[string]any{"net_worth": m.NetWorth}
		}},
	{Inactivity, Emotional, 3,
		func(m Metrics) bool { return m.DaysInactive >= 7 },
		func(m Metrics) map[string]any {
			return map[string]any{"days_inactive": m.DaysInactive}
		}},
	{FinancialStress, Emotional, 4,
		func(m Metrics) bool { return m.NetWorth < 0 },
		func(m Metrics) map[string]any {
			return map[string]any{"net_worth": m.NetWorth}
		}},
	{FirstAsset, Emotional, 3,
		func(m Metrics) bool { return m.IsFirstAsset },
		func(m Metrics) map[string]any {
			return map[string]any{"asset_count": 1}
		}},
	{ConsistentProgress, Emotional, 3,
		func(m Metrics) bool { return m.EngagementDays >= 180 },
		func(m Metrics) map[string]any {
			return map[string]any{"months_active": m.EngagementDays / 30}
		}},
	{DebtFree, Emotional, 2,
		func(m Metrics) bool { return m.TotalLiabilities == 0 && m.TotalAssets > 0 },
		func(m Metrics) map[string]any {
			return map[string]any{"total_debt": 0}
		}},
	{Overworking, Emotional, 3,
		func(m Metrics) bool { return m.WorkHoursPerWeek >= 60 },
		func(m Metrics) map[string]any {
			return map[string]any{"hours_per_week": m.WorkHoursPerWeek}
		}},
}

// Check evaluates the rule table against m and returns every match in table order.
func Check(m Metrics) []Trigger {
	var out []Trigger
	for _, r := range rules {
		if !r.when(m) {
			continue
		}
		out = append(out, Trigger{
			Type:     r.trigger,
			Persona:  r.persona,
			Priority: r.priority,
			Data:     r.data(m),
		})
	}
	return out
}

// Top returns at most n triggers, highest priority first. Equal priorities
// keep their input order.
func Top(triggers []Trigger, n int) []Trigger {
	sorted := append([]Trigger(nil), triggers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// RuleTypes lists the trigger types of the periodic rule table, in order.
func RuleTypes() []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.trigger)
	}
	return out
}
