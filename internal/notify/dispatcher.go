package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	InsertNotification(ctx context.Context, playerID uuid.UUID, kind, title, body string) error
	// PushToken returns "" when the player has not registered a device.
	PushToken(ctx context.Context, playerID uuid.UUID) (string, error)
}

type Pusher interface {
	Send(ctx context.Context, msgs []PushMessage) (SendResult, error)
}

// Dispatcher records in-app notifications and forwards them to the player's
// device. It satisfies the notifier interfaces of both engines.
type Dispatcher struct {
	store  Store
	pusher Pusher
	log    *slog.Logger
	now    func() time.Time
}

func NewDispatcher(store Store, pusher Pusher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:  store,
		pusher: pusher,
		log:    logger.With("component", "notify"),
		now:    time.Now,
	}
}

// Notify stores the notification, then pushes it when the player has a valid
// token. Push failures are logged; only the insert can fail the call.
func (d *Dispatcher) Notify(ctx context.Context, playerID uuid.UUID, kind, title, body string) error {
	if err := d.store.InsertNotification(ctx, playerID, kind, title, body); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if d.pusher == nil {
		return nil
	}

	token, err := d.store.PushToken(ctx, playerID)
	if err != nil {
		d.log.Warn("load push token failed", "player_id", playerID, "err", err)
		return nil
	}
	if token == "" {
		return nil
	}
	if !ValidToken(token) {
		d.log.Warn("invalid push token", "player_id", playerID)
		return nil
	}

	res, err := d.pusher.Send(ctx, []PushMessage{{
		To:    token,
		Title: title,
		Body:  body,
		Data: map[string]any{
			"type":      kind,
			"timestamp": d.now().UTC().Format(time.RFC3339),
		},
	}})
	if err != nil {
		d.log.Warn("push failed", "player_id", playerID, "err", err)
		return nil
	}
	for _, t := range res.Tickets {
		if !t.OK() {
			d.log.Warn("push rejected", "player_id", playerID, "message", t.Message, "reason", t.Details.Error)
		}
	}
	return nil
}
