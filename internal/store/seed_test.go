package store

import (
	"testing"

	"lifesim/internal/advisory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payloads fires every rule in the table across a few metric sets and keeps
// one trigger per type.
func payloads() map[string]advisory.Trigger {
	sets := []advisory.Metrics{
		{
			CashRatio: 0.6, Cash: 10000, AssetConcentration: 0.8, NetWorthGrowthPercentage: 0.3,
			TotalAssets: 100, TotalLiabilities: 50, MonthlyIncome: 5000, AssetGrowthPercentage: 0.2,
			IncomeSourcesCount: 1, SavingsRate: 0.4, MonthlySavings: 2000, DebtToIncomeRatio: 0.5,
			PassiveIncomeRatio: 0.1, ExpenseRatio: 0.9, CashFlow: -10, CreditScore: 600,
			IncomeStagnantMonths: 7, NetWorth: 12000, DaysInactive: 8, IsFirstAsset: true,
			EngagementDays: 200, WorkHoursPerWeek: 65,
		},
		{TotalAssets: 0, DebtToIncomeRatio: 0.1, NetWorth: -5, CreditScore: 700},
		{TotalAssets: 100, CreditScore: 700},
	}
	out := map[string]advisory.Trigger{}
	for _, m := range sets {
		for _, tr := range advisory.Check(m) {
			out[tr.Type] = tr
		}
	}
	return out
}

func TestSeedTemplatesCoverEveryRule(t *testing.T) {
	personas := map[string]advisory.Persona{}
	for _, tmpl := range templateSeed {
		personas[tmpl.Trigger] = tmpl.Persona
	}
	data := payloads()
	for _, typ := range advisory.RuleTypes() {
		persona, ok := personas[typ]
		assert.True(t, ok, "no seeded template for %s", typ)
		tr, fired := data[typ]
		require.True(t, fired, "payload set never fires %s", typ)
		assert.Equal(t, tr.Persona, persona, "template persona for %s", typ)
	}
}

func TestSeedTemplatesRenderWithRulePayloads(t *testing.T) {
	data := payloads()
	for _, tmpl := range templateSeed {
		t.Run(tmpl.Trigger, func(t *testing.T) {
			tr, ok := data[tmpl.Trigger]
			require.True(t, ok)
			body, err := advisory.Render(tmpl.Body, "sam", tr.Data)
			require.NoError(t, err)
			assert.NotContains(t, body, "{")
		})
	}
}
