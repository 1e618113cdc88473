package advisory

import (
	"math"
	"time"

	"lifesim/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultCreditScore  = 650
	DefaultWorkHours    = 40
	StagnantAfterMonths = 6
	LedgerWindow        = 30 * 24 * time.Hour
	SnapshotLookback    = 30 * 24 * time.Hour
)

// PassiveCategories are ledger income categories that count as passive income.
var PassiveCategories = []string{"dividend", "rental_income", "interest", "passive_income"}

type Profile struct {
	PlayerID         uuid.UUID
	Username         string
	NetWorth         decimal.Decimal
	MonthlyIncome    decimal.Decimal
	MonthlySavings   decimal.Decimal
	CreditScore      int
	IncomeSources    int
	EngagementDays   int
	ExperiencePoints int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
	PushToken        string
}

type Asset struct {
	Type          string
	Value         decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
}

type Loan struct {
	Amount         decimal.Decimal
	MonthlyPayment decimal.Decimal
}

type Job struct {
	StartDate        time.Time
	WorkHoursPerWeek *int
}

// LedgerTotals sums ledger entries inside the 30-day window.
type LedgerTotals struct {
	Income        decimal.Decimal
	Expenses      decimal.Decimal
	PassiveIncome decimal.Decimal
}

type Snapshot struct {
	PlayerID         uuid.UUID       `json:"player_id"`
	NetWorth         decimal.Decimal `json:"net_worth"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	MonthlyIncome    decimal.Decimal `json:"monthly_income"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	TakenAt          time.Time       `json:"snapshot_date"`
}

// Financials is everything Analyze needs about one player, loaded by the store.
type Financials struct {
	Profile        Profile
	Assets         []Asset
	Loans          []Loan
	LifestyleValue decimal.Decimal
	Cash           decimal.Decimal
	Ledger         LedgerTotals
	CurrentJobs    []Job
	// Baseline is the latest snapshot taken at least SnapshotLookback ago.
	Baseline *Snapshot
}

type Metrics struct {
	NetWorth                 float64            `json:"net_worth"`
	TotalAssets              float64            `json:"total_assets"`
	TotalLiabilities         float64            `json:"total_liabilities"`
	LifestyleValue           float64            `json:"lifestyle_value"`
	Cash                     float64            `json:"cash"`
	CashRatio                float64            `json:"cash_ratio"`
	MonthlyIncome            float64            `json:"monthly_income"`
	MonthlyDebtPayments      float64            `json:"monthly_debt_payments"`
	DebtToIncomeRatio        float64            `json:"debt_to_income_ratio"`
	AssetConcentration       float64            `json:"asset_concentration"`
	AssetTypes               map[string]float64 `json:"asset_types"`
	CreditScore              int                `json:"credit_score"`
	AssetGrowthPercentage    float64            `json:"asset_growth_percentage"`
	PassiveIncome            float64            `json:"passive_income"`
	PassiveIncomeRatio       float64            `json:"passive_income_ratio"`
	AssetCount               int                `json:"asset_count"`
	IsFirstAsset             bool               `json:"is_first_asset"`
	IncomeStagnantMonths     int                `json:"income_stagnant_months"`
	TotalIncome              float64            `json:"total_income"`
	TotalExpenses            float64            `json:"total_expenses"`
	ExpenseRatio             float64            `json:"expense_ratio"`
	CashFlow                 float64            `json:"cash_flow"`
	DaysInactive             int                `json:"days_inactive"`
	AccountAgeMonths         float64            `json:"account_age_months"`
	IncomeSourcesCount       int                `json:"income_sources_count"`
	MonthlySavings           float64            `json:"monthly_savings"`
	SavingsRate              float64            `json:"savings_rate"`
	EngagementDays           int                `json:"engagement_days"`
	WorkHoursPerWeek         int                `json:"work_hours_per_week"`
	NetWorthGrowthPercentage float64            `json:"net_worth_growth_percentage"`
}

// Analyze derives the player's financial-health metrics. Every ratio with a
// zero denominator resolves to 0.
func Analyze(f Financials, now time.Time) Metrics {
	p := f.Profile
	m := Metrics{
		NetWorth:           money.Float(p.NetWorth),
		Cash:               money.Float(f.Cash),
		MonthlyIncome:      money.Float(p.MonthlyIncome),
		MonthlySavings:     money.Float(p.MonthlySavings),
		LifestyleValue:     money.Float(f.LifestyleValue),
		CreditScore:        p.CreditScore,
		EngagementDays:     p.EngagementDays,
		IncomeSourcesCount: p.IncomeSources,
		AssetTypes:         map[string]float64{},
	}
	if m.CreditScore == 0 {
		m.CreditScore = DefaultCreditScore
	}

	totalAssets, totalPurchase := decimal.Zero, decimal.Zero
	byType := map[string]decimal.Decimal{}
	for _, a := range f.Assets {
		totalAssets = totalAssets.Add(a.Value)
		totalPurchase = totalPurchase.Add(a.PurchasePrice)
		byType[a.Type] = byType[a.Type].Add(a.Value)
	}
	largest := decimal.Zero
	for typ, v := range byType {
		m.AssetTypes[typ] = money.Float(v)
		if v.GreaterThan(largest) {
			largest = v
		}
	}
	m.TotalAssets = money.Float(totalAssets)
	m.AssetCount = len(f.Assets)
	m.AssetConcentration = money.Ratio(largest, totalAssets)
	m.CashRatio = money.Ratio(f.Cash, totalAssets)
	m.AssetGrowthPercentage = money.Ratio(totalAssets.Sub(totalPurchase), totalPurchase)
	m.IsFirstAsset = m.AssetCount == 1

	totalLoans, totalPayments := decimal.Zero, decimal.Zero
	for _, l := range f.Loans {
		totalLoans = totalLoans.Add(l.Amount)
		totalPayments = totalPayments.Add(l.MonthlyPayment)
	}
	m.TotalLiabilities = money.Float(totalLoans)
	m.MonthlyDebtPayments = money.Float(totalPayments)
	m.DebtToIncomeRatio = money.Ratio(totalPayments, p.MonthlyIncome)

	m.PassiveIncome = money.Float(f.Ledger.PassiveIncome)
	m.PassiveIncomeRatio = money.Ratio(f.Ledger.PassiveIncome, p.MonthlyIncome)
	m.TotalIncome = money.Float(f.Ledger.Income)
	m.TotalExpenses = money.Float(f.Ledger.Expenses)
	m.ExpenseRatio = money.Ratio(f.Ledger.Expenses, p.MonthlyIncome)
	m.CashFlow = money.Float(f.Ledger.Income.Sub(f.Ledger.Expenses))
	m.SavingsRate = money.Ratio(p.MonthlySavings, p.MonthlyIncome)

	if len(f.CurrentJobs) > 0 {
		oldest := f.CurrentJobs[0].StartDate
		hours := 0
		for _, j := range f.CurrentJobs {
			if j.StartDate.Before(oldest) {
				oldest = j.StartDate
			}
			h := DefaultWorkHours
			if j.WorkHoursPerWeek != nil {
				h = *j.WorkHoursPerWeek
			}
			hours = max(hours, h)
		}
		monthsInJob := wholeDays(now.Sub(oldest)) / 30
		if monthsInJob >= StagnantAfterMonths {
			m.IncomeStagnantMonths = monthsInJob
		}
		m.WorkHoursPerWeek = hours
	}

	if !p.UpdatedAt.IsZero() {
		m.DaysInactive = max(0, wholeDays(now.Sub(p.UpdatedAt)))
	}
	if !p.CreatedAt.IsZero() {
		m.AccountAgeMonths = math.Max(0, float64(wholeDays(now.Sub(p.CreatedAt)))/30)
	}
	if f.Baseline != nil {
		m.NetWorthGrowthPercentage = money.Ratio(p.NetWorth.Sub(f.Baseline.NetWorth), f.Baseline.NetWorth)
	}
	return m
}

// SnapshotOf captures the aggregates stored for later net-worth growth comparisons.
func SnapshotOf(f Financials, takenAt time.Time) Snapshot {
	assets := decimal.Zero
	for _, a := range f.Assets {
		assets = assets.Add(a.Value)
	}
	loans := decimal.Zero
	for _, l := range f.Loans {
		loans = loans.Add(l.Amount)
	}
	return Snapshot{
		PlayerID:         f.Profile.PlayerID,
		NetWorth:         f.Profile.NetWorth,
		TotalAssets:      assets,
		TotalLiabilities: loans,
		MonthlyIncome:    f.Profile.MonthlyIncome,
		CashBalance:      f.Cash,
		TakenAt:          takenAt,
	}
}

func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
