package store

import (
	"context"

	"lifesim/internal/advisory"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type seedItem struct {
	Name        string
	Category    string
	Price       int64
	MonthlyCost int64
	Description string
}

var catalogSeed = []seedItem{
	{"Designer Wardrobe", "fashion", 8000, 0, "A closet full of labels."},
	{"Luxury Watch", "accessories", 12000, 40, "Swiss movement, yearly servicing."},
	{"Home Theater", "electronics", 15000, 60, "Projector, surround sound, recliners."},
	{"Motorcycle", "vehicle", 18000, 150, "Insurance and upkeep included in the monthly cost."},
	{"Sports Car", "vehicle", 65000, 800, "Fast, loud and expensive to insure."},
	{"Speedboat", "leisure", 90000, 1200, "Marina fees add up."},
	{"Yacht", "leisure", 250000, 4000, "Crew, fuel and docking every month."},
}

type seedMentor struct {
	Name        string
	Persona     advisory.Persona
	Personality string
	Greeting    string
}

var mentorSeed = []seedMentor{
	{"Coach Chen", advisory.Strategic, "Direct, numbers-first investment coach.", "Hey {username}, let's make your money work."},
	{"Tasha", advisory.RiskAnalyst, "Calm risk analyst who spots trouble early.", "Hi {username}, let's check your risk."},
	{"Mom", advisory.Emotional, "Warm, encouraging and a little worried about you.", "Sweetheart, how are you doing, {username}?"},
}

type seedTemplate struct {
	Persona   advisory.Persona
	Trigger   string
	Body      string
	CTAText   string
	CTAAction string
	Priority  int
	Points    int
}

var templateSeed = []seedTemplate{
	{advisory.Strategic, advisory.HighCashRatio, "{username}, {cash_percentage}% of your wealth is sitting in cash (${cash_amount}). Inflation costs you about ${inflation_loss} a year. Put some of it to work.", "Browse investments", advisory.CTAMarketplace, 4, 15},
	{advisory.Strategic, advisory.PoorDiversification, "{username}, {concentration}% of your assets are in one type. One bad year there hurts everything. Spread it out.", "Diversify", advisory.CTAMarketplace, 4, 15},
	{advisory.Strategic, advisory.NetWorthGrowth, "Your net worth grew {growth_percentage}% this month, {username}. That's how it's done.", "", "", 3, 5},
	{advisory.Strategic, advisory.Overextension, "{username}, liabilities are {liability_percentage}% of your assets. Consider selling something you don't need.", "Review liabilities", advisory.CTALiabilities, 5, 20},
	{advisory.Strategic, advisory.LowEmergencyFund, "{username}, you have {emergency_months} months of income in cash (${cash_amount}). Aim for at least 3 months of ${monthly_expenses}.", "", "", 5, 15},
	{advisory.Strategic, advisory.StrongAssetGrowth, "Your assets are up {growth_percentage}% on what you paid, {username}. Consider reinvesting the gains.", "Reinvest", advisory.CTAMarketplace, 3, 10},
	{advisory.Strategic, advisory.SingleIncomeSource, "{username}, you rely on {income_sources} income source. Income-producing assets would add another.", "Find income assets", advisory.CTAMarketplace, 4, 15},
	{advisory.Strategic, advisory.HighSavingsRate, "Saving {savings_percentage}% of income (${monthly_savings}/month) is excellent, {username}.", "", "", 3, 5},

	{advisory.RiskAnalyst, advisory.HighDebtToIncome, "{username}, {debt_percentage}% of your income goes to debt payments (${monthly_debt}/month). That's above the 40% danger line.", "Review loans", advisory.CTALoans, 5, 20},
	{advisory.RiskAnalyst, advisory.LowPassiveIncome, "Only {passive_percentage}% of your income is passive (${passive_income}), {username}. Your income stops when you stop working.", "Explore income assets", advisory.CTAMarketplace, 4, 15},
	{advisory.RiskAnalyst, advisory.HighExpenseRatio, "{username}, you spent ${total_expenses} against ${monthly_income} of income ({expense_percentage}%). Housing is usually the first place to cut.", "Review expenses", "navigate_to_housing", 4, 15},
	{advisory.RiskAnalyst, advisory.NegativeCashFlow, "{username}, you're spending ${deficit} more than you earn this month. Expenses ${monthly_expenses}, income ${monthly_income}.", "", "", 5, 20},
	{advisory.RiskAnalyst, advisory.PoorCreditScore, "{username}, a credit score of {credit_score} makes every loan more expensive. Pay on time and keep balances low.", "", "", 4, 10},
	{advisory.RiskAnalyst, advisory.NoAssets, "{username}, you don't own any assets yet. Even a small first investment starts compounding.", "Buy your first asset", advisory.CTAMarketplace, 5, 20},
	{advisory.RiskAnalyst, advisory.LowDebtRatio, "Debt is only {debt_percentage}% of your income, {username}. Well managed.", "", "", 3, 5},
	{advisory.RiskAnalyst, advisory.StagnantIncome, "{username}, you've been in the same job for {months_stagnant} months. It may be time to negotiate or look around.", "Browse jobs", advisory.CTAJobs, 4, 15},

	{advisory.Emotional, advisory.Milestone10K, "Sweetheart, you reached ${net_worth}! I'm so proud of you, {username}.", "", "", 3, 10},
	{advisory.Emotional, advisory.Inactivity, "{username}, I haven't heard from you in {days_inactive} days. Everything alright?", "", "", 3, 5},
	{advisory.Emotional, advisory.FinancialStress, "{username}, your net worth is ${net_worth} right now. It's hard, but you can climb out of this one step at a time.", "", "", 4, 10},
	{advisory.Emotional, advisory.FirstAsset, "Your very first asset, {username}! This is the start of something.", "", "", 3, 10},
	{advisory.Emotional, advisory.ConsistentProgress, "{months_active} months of showing up, {username}. That consistency is everything.", "", "", 3, 10},
	{advisory.Emotional, advisory.DebtFree, "Debt free, {username}! Total debt: ${total_debt}. Enjoy that feeling.", "", "", 2, 10},
	{advisory.Emotional, advisory.Overworking, "{username}, {hours_per_week} hours a week is too much. Money matters, but so do you.", "Look at other jobs", advisory.CTAJobs, 3, 5},
}

// SeedDefaults fills the lifestyle catalog and the mentor roster when they are
// empty. Each table is seeded independently.
func (s *Store) SeedDefaults(ctx context.Context) error {
	if err := s.seedCatalog(ctx); err != nil {
		return err
	}
	return s.seedMentors(ctx)
}

func (s *Store) seedCatalog(ctx context.Context) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM lifesim.liability_items`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range catalogSeed {
		_, err := tx.Exec(ctx, `
			INSERT INTO lifesim.liability_items (name, category, base_price, monthly_cost, description)
			VALUES ($1, $2, $3, $4, $5)
		`, it.Name, it.Category, decimal.NewFromInt(it.Price), decimal.NewFromInt(it.MonthlyCost), it.Description)
		if err != nil {
			return err
		}
	}
	s.log.Info("seeded lifestyle catalog", "items", len(catalogSeed))
	return tx.Commit(ctx)
}

func (s *Store) seedMentors(ctx context.Context) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM lifesim.mentors`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := make(map[advisory.Persona]uuid.UUID, len(mentorSeed))
	for _, m := range mentorSeed {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO lifesim.mentors (name, role, personality, greeting_template)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, m.Name, string(m.Persona), m.Personality, m.Greeting).Scan(&id); err != nil {
			return err
		}
		ids[m.Persona] = id
	}
	if err := insertTemplates(ctx, tx, ids); err != nil {
		return err
	}
	s.log.Info("seeded mentors", "mentors", len(mentorSeed), "templates", len(templateSeed))
	return tx.Commit(ctx)
}

func insertTemplates(ctx context.Context, tx pgx.Tx, mentors map[advisory.Persona]uuid.UUID) error {
	for _, t := range templateSeed {
		_, err := tx.Exec(ctx, `
			INSERT INTO lifesim.mentor_messages
				(mentor_id, trigger_type, message_template, cta_text, cta_action, priority, points_reward)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		`, mentors[t.Persona], t.Trigger, t.Body, t.CTAText, t.CTAAction, t.Priority, t.Points)
		if err != nil {
			return err
		}
	}
	return nil
}
