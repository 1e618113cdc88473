package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

// StarterBalance is credited to every new player.
var StarterBalance = decimal.NewFromInt(10000)

// EnsurePlayer creates the profile and balance rows for a newly seen user.
// Existing rows are left untouched.
func (s *Store) EnsurePlayer(ctx context.Context, userID uuid.UUID, email, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		username = usernameFromEmail(email)
	}
	if !usernameRE.MatchString(username) {
		username = sanitizeUsername(usernameFromEmail(email))
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		var taken bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM lifesim.profiles WHERE username = $1 AND user_id <> $2)
		`, username, userID).Scan(&taken); err != nil {
			return err
		}
		if taken {
			username = uniqueUsername(username, userID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO lifesim.profiles (user_id, email, username, net_worth)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, email, username, StarterBalance); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO lifesim.balances (user_id, current_balance)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, StarterBalance)
		return err
	})
}

// TouchLogin records a login; the daily advisory run only visits recently seen players.
func (s *Store) TouchLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE lifesim.profiles
		SET last_login_at = now(), updated_at = now()
		WHERE user_id = $1
	`, userID)
	return err
}

// SetPushToken stores the player's Expo push token; an empty token clears it.
func (s *Store) SetPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	var arg any
	if token != "" {
		arg = token
	}
	cmd, err := s.db.Exec(ctx, `UPDATE lifesim.profiles SET push_token = $2 WHERE user_id = $1`, userID, arg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "player"
	}
	return sanitizeUsername(local)
}

func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "player"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "player_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}

// uniqueUsername suffixes name with part of the user id, staying within 24 chars.
func uniqueUsername(name string, userID uuid.UUID) string {
	suffix := "_" + strings.ReplaceAll(userID.String(), "-", "")[:6]
	if len(name)+len(suffix) > 24 {
		name = name[:24-len(suffix)]
	}
	return name + suffix
}
