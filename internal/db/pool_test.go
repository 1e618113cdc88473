package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDeclaresEveryTable(t *testing.T) {
	tables := []string{
		"profiles", "balances", "transactions", "user_assets", "loans", "jobs",
		"liability_items", "player_liabilities", "monthly_deductions", "mission_progress",
		"financial_snapshots", "mentors", "mentor_messages", "mentor_interactions",
		"notifications", "idempotency_keys",
	}
	for _, table := range tables {
		assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS lifesim."+table+" (", table)
	}
}

func TestSchemaIsRerunnable(t *testing.T) {
	for _, stmt := range strings.Split(Schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		assert.Contains(t, stmt, "IF NOT EXISTS", stmt)
	}
}
