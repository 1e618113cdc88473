package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lifesim/internal/advisory"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const profileColumns = `
	user_id, username, net_worth, monthly_income, monthly_savings, credit_score,
	income_sources_count, engagement_days, experience_points, created_at, updated_at,
	last_login_at, COALESCE(push_token, '')
`

func scanProfile(row pgx.Row) (advisory.Profile, error) {
	var p advisory.Profile
	err := row.Scan(
		&p.PlayerID, &p.Username, &p.NetWorth, &p.MonthlyIncome, &p.MonthlySavings, &p.CreditScore,
		&p.IncomeSources, &p.EngagementDays, &p.ExperiencePoints, &p.CreatedAt, &p.UpdatedAt,
		&p.LastLoginAt, &p.PushToken,
	)
	return p, err
}

func (s *Store) Profile(ctx context.Context, playerID uuid.UUID) (advisory.Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM lifesim.profiles WHERE user_id = $1`, playerID))
	if err != nil {
		return advisory.Profile{}, notFound(err, advisory.ErrNotFound)
	}
	return p, nil
}

// LoadFinancials reads everything the metrics need from one snapshot.
func (s *Store) LoadFinancials(ctx context.Context, playerID uuid.UUID, now time.Time) (advisory.Financials, error) {
	var f advisory.Financials
	err := s.readTx(ctx, func(tx pgx.Tx) error {
		var err error
		f.Profile, err = scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM lifesim.profiles WHERE user_id = $1`, playerID))
		if err != nil {
			return notFound(err, advisory.ErrNotFound)
		}
		if f.Assets, err = loadAssets(ctx, tx, playerID); err != nil {
			return fmt.Errorf("assets: %w", err)
		}
		if f.Loans, err = loadLoans(ctx, tx, playerID); err != nil {
			return fmt.Errorf("loans: %w", err)
		}
		if f.CurrentJobs, err = loadCurrentJobs(ctx, tx, playerID); err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			SELECT
				COALESCE((SELECT current_balance FROM lifesim.balances WHERE user_id = $1), 0),
				COALESCE((SELECT SUM(COALESCE(current_value, purchase_price))
					FROM lifesim.player_liabilities WHERE player_id = $1 AND is_active), 0)
		`, playerID).Scan(&f.Cash, &f.LifestyleValue); err != nil {
			return fmt.Errorf("balances: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			SELECT
				COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
				COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0),
				COALESCE(SUM(amount) FILTER (WHERE type = 'income' AND category = ANY($3)), 0)
			FROM lifesim.transactions
			WHERE user_id = $1 AND transaction_date >= $2
		`, playerID, now.Add(-advisory.LedgerWindow), advisory.PassiveCategories).Scan(
			&f.Ledger.Income, &f.Ledger.Expenses, &f.Ledger.PassiveIncome,
		); err != nil {
			return fmt.Errorf("ledger window: %w", err)
		}

		var snap advisory.Snapshot
		err = tx.QueryRow(ctx, `
			SELECT player_id, net_worth, total_assets, total_liabilities, monthly_income, cash_balance, snapshot_date
			FROM lifesim.financial_snapshots
			WHERE player_id = $1 AND snapshot_date <= $2
			ORDER BY snapshot_date DESC
			LIMIT 1
		`, playerID, now.Add(-advisory.SnapshotLookback)).Scan(
			&snap.PlayerID, &snap.NetWorth, &snap.TotalAssets, &snap.TotalLiabilities,
			&snap.MonthlyIncome, &snap.CashBalance, &snap.TakenAt,
		)
		switch {
		case err == nil:
			f.Baseline = &snap
		case err != pgx.ErrNoRows:
			return fmt.Errorf("baseline snapshot: %w", err)
		}
		f.Profile.NetWorth = netWorth(f)
		return nil
	})
	if err != nil {
		return advisory.Financials{}, err
	}
	return f, nil
}

func loadAssets(ctx context.Context, tx pgx.Tx, playerID uuid.UUID) ([]advisory.Asset, error) {
	rows, err := tx.Query(ctx, `
		SELECT asset_type, value, purchase_price, purchase_date
		FROM lifesim.user_assets
		WHERE user_id = $1
		ORDER BY purchase_date
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []advisory.Asset
	for rows.Next() {
		var a advisory.Asset
		if err := rows.Scan(&a.Type, &a.Value, &a.PurchasePrice, &a.PurchaseDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadLoans(ctx context.Context, tx pgx.Tx, playerID uuid.UUID) ([]advisory.Loan, error) {
	rows, err := tx.Query(ctx, `SELECT amount, monthly_payment FROM lifesim.loans WHERE user_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []advisory.Loan
	for rows.Next() {
		var l advisory.Loan
		if err := rows.Scan(&l.Amount, &l.MonthlyPayment); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func loadCurrentJobs(ctx context.Context, tx pgx.Tx, playerID uuid.UUID) ([]advisory.Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT start_date, work_hours_per_week
		FROM lifesim.jobs
		WHERE user_id = $1 AND is_current
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []advisory.Job
	for rows.Next() {
		var j advisory.Job
		if err := rows.Scan(&j.StartDate, &j.WorkHoursPerWeek); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ActiveConstraints returns the constraint set of the player's latest mission
// in progress, or nil.
func (s *Store) ActiveConstraints(ctx context.Context, playerID uuid.UUID) (*advisory.Constraints, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT constraints_applied
		FROM lifesim.mission_progress
		WHERE player_id = $1 AND status = 'in_progress'
		ORDER BY started_at DESC
		LIMIT 1
	`, playerID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && len(raw) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c advisory.Constraints
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode mission constraints: %w", err)
	}
	return &c, nil
}

// StartMission records a mission in progress with its constraint set.
func (s *Store) StartMission(ctx context.Context, playerID uuid.UUID, missionKey string, c advisory.Constraints) (uuid.UUID, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO lifesim.mission_progress (player_id, mission_key, status, constraints_applied)
		VALUES ($1, $2, 'in_progress', $3::jsonb)
		RETURNING id
	`, playerID, missionKey, string(raw)).Scan(&id)
	return id, err
}

func (s *Store) MentorByPersona(ctx context.Context, p advisory.Persona) (advisory.Mentor, error) {
	var m advisory.Mentor
	err := s.db.QueryRow(ctx, `
		SELECT id, name, role, personality, greeting_template
		FROM lifesim.mentors
		WHERE role = $1
	`, string(p)).Scan(&m.ID, &m.Name, &m.Persona, &m.Personality, &m.Greeting)
	if err != nil {
		return advisory.Mentor{}, notFound(err, advisory.ErrNotFound)
	}
	return m, nil
}

func (s *Store) Mentors(ctx context.Context) ([]advisory.Mentor, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, role, personality, greeting_template FROM lifesim.mentors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]advisory.Mentor, 0, 3)
	for rows.Next() {
		var m advisory.Mentor
		if err := rows.Scan(&m.ID, &m.Name, &m.Persona, &m.Personality, &m.Greeting); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Template(ctx context.Context, mentorID uuid.UUID, triggerType string) (advisory.Template, error) {
	var t advisory.Template
	err := s.db.QueryRow(ctx, `
		SELECT id, mentor_id, trigger_type, message_template, COALESCE(cta_text, ''), COALESCE(cta_action, ''), priority, points_reward
		FROM lifesim.mentor_messages
		WHERE mentor_id = $1 AND trigger_type = $2 AND is_active
		ORDER BY priority DESC
		LIMIT 1
	`, mentorID, triggerType).Scan(&t.ID, &t.MentorID, &t.TriggerType, &t.Body, &t.CTAText, &t.CTAAction, &t.Priority, &t.PointsReward)
	if err != nil {
		return advisory.Template{}, notFound(err, advisory.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ActivePlayers(ctx context.Context, since time.Time) ([]advisory.Profile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM lifesim.profiles
		WHERE last_login_at >= $1
		ORDER BY user_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []advisory.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const interactionColumns = `
	id, player_id, mentor_id, message_id, message_content, trigger_type, player_data_snapshot,
	sent_at, read_at, action_taken, action_taken_at, points_earned, relationship_score
`

func scanInteraction(row pgx.Row) (advisory.Interaction, error) {
	var in advisory.Interaction
	var snapshot []byte
	err := row.Scan(
		&in.ID, &in.PlayerID, &in.MentorID, &in.MessageID, &in.Content, &in.TriggerType, &snapshot,
		&in.SentAt, &in.ReadAt, &in.ActionTaken, &in.ActionTakenAt, &in.PointsEarned, &in.RelationshipScore,
	)
	if err != nil {
		return advisory.Interaction{}, err
	}
	if len(snapshot) > 0 {
		var m advisory.Metrics
		if err := json.Unmarshal(snapshot, &m); err == nil {
			in.Snapshot = &m
		}
	}
	return in, nil
}

func (s *Store) RecordInteraction(ctx context.Context, in advisory.Interaction) (advisory.Interaction, error) {
	var snapshot any
	if in.Snapshot != nil {
		raw, err := json.Marshal(in.Snapshot)
		if err != nil {
			return advisory.Interaction{}, err
		}
		snapshot = string(raw)
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO lifesim.mentor_interactions
			(player_id, mentor_id, message_id, message_content, trigger_type, player_data_snapshot, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		RETURNING id
	`, in.PlayerID, in.MentorID, in.MessageID, in.Content, in.TriggerType, snapshot, in.SentAt).Scan(&in.ID)
	if err != nil {
		return advisory.Interaction{}, err
	}
	return in, nil
}

// RecordSnapshot stores snap and refreshes the profile's cached net worth.
func (s *Store) RecordSnapshot(ctx context.Context, snap advisory.Snapshot) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lifesim.financial_snapshots
				(player_id, net_worth, total_assets, total_liabilities, monthly_income, cash_balance, snapshot_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, snap.PlayerID, snap.NetWorth, snap.TotalAssets, snap.TotalLiabilities, snap.MonthlyIncome, snap.CashBalance, snap.TakenAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE lifesim.profiles SET net_worth = $2 WHERE user_id = $1
		`, snap.PlayerID, snap.NetWorth)
		return err
	})
}

// MarkFollowed awards the template's points_reward, or fallbackPoints for
// interactions without a template, on the interaction and the player's
// profile in one transaction. Already-followed interactions are returned unchanged.
func (s *Store) MarkFollowed(ctx context.Context, playerID, interactionID uuid.UUID, fallbackPoints int, at time.Time) (advisory.Interaction, error) {
	var out advisory.Interaction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		in, err := scanInteraction(tx.QueryRow(ctx, `
			SELECT `+interactionColumns+`
			FROM lifesim.mentor_interactions
			WHERE id = $1 AND player_id = $2
			FOR UPDATE
		`, interactionID, playerID))
		if err != nil {
			return notFound(err, advisory.ErrNotFound)
		}
		if in.ActionTaken {
			out = in
			return nil
		}
		points, err := followReward(ctx, tx, in.MessageID, fallbackPoints)
		if err != nil {
			return err
		}
		out, err = scanInteraction(tx.QueryRow(ctx, `
			UPDATE lifesim.mentor_interactions
			SET action_taken = true, action_taken_at = $2, points_earned = $3,
				relationship_score = relationship_score + $3
			WHERE id = $1
			RETURNING `+interactionColumns,
			interactionID, at, points))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE lifesim.profiles
			SET experience_points = experience_points + $2
			WHERE user_id = $1
		`, playerID, points)
		return err
	})
	if err != nil {
		return advisory.Interaction{}, err
	}
	return out, nil
}

func followReward(ctx context.Context, tx pgx.Tx, messageID *uuid.UUID, fallback int) (int, error) {
	if messageID == nil {
		return fallback, nil
	}
	var reward int
	err := tx.QueryRow(ctx, `SELECT points_reward FROM lifesim.mentor_messages WHERE id = $1`, *messageID).Scan(&reward)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && reward <= 0) {
		return fallback, nil
	}
	return reward, err
}

func (s *Store) MarkRead(ctx context.Context, playerID, interactionID uuid.UUID, at time.Time) (advisory.Interaction, error) {
	in, err := scanInteraction(s.db.QueryRow(ctx, `
		UPDATE lifesim.mentor_interactions
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND player_id = $2
		RETURNING `+interactionColumns,
		interactionID, playerID, at))
	if err != nil {
		return advisory.Interaction{}, notFound(err, advisory.ErrNotFound)
	}
	return in, nil
}

func (s *Store) Interactions(ctx context.Context, playerID uuid.UUID) ([]advisory.Interaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+interactionColumns+`
		FROM lifesim.mentor_interactions
		WHERE player_id = $1
		ORDER BY sent_at DESC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]advisory.Interaction, 0)
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// netWorth is cash plus assets and lifestyle holdings at current value, minus
// loan principal. The profile column only caches it between snapshots.
func netWorth(f advisory.Financials) decimal.Decimal {
	total := f.Cash.Add(f.LifestyleValue)
	for _, a := range f.Assets {
		total = total.Add(a.Value)
	}
	for _, l := range f.Loans {
		total = total.Sub(l.Amount)
	}
	return total
}

func (s *Store) CompleteMission(ctx context.Context, playerID, missionID uuid.UUID) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE lifesim.mission_progress
		SET status = 'completed'
		WHERE id = $1 AND player_id = $2 AND status = 'in_progress'
	`, missionID, playerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return advisory.ErrNotFound
	}
	return nil
}
