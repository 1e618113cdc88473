package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) InsertNotification(ctx context.Context, playerID uuid.UUID, kind, title, body string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO lifesim.notifications (user_id, type, title, message)
		VALUES ($1, $2, $3, $4)
	`, playerID, kind, title, body)
	return err
}

// PushToken returns the player's Expo push token, or "" when none is registered.
func (s *Store) PushToken(ctx context.Context, playerID uuid.UUID) (string, error) {
	var token string
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(push_token, '') FROM lifesim.profiles WHERE user_id = $1
	`, playerID).Scan(&token)
	if err != nil {
		return "", notFound(err, ErrPlayerNotFound)
	}
	return token, nil
}

func (s *Store) Notifications(ctx context.Context, playerID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, type, title, message, read, created_at
		FROM lifesim.notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
