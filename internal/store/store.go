package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/depreciation"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTxConflict     = errors.New("transaction conflict, retry")
	ErrPlayerNotFound = errors.New("player not found")
)

var (
	_ depreciation.Store = (*Store)(nil)
	_ advisory.Store     = (*Store)(nil)
)

// Store is the Postgres implementation of the depreciation, advisory and
// notification stores.
type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger.With("component", "store")}
}

// withTx runs fn in a read-committed transaction, retrying serialization
// failures and deadlocks with backoff.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 5
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := func() error {
			tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		s.log.Warn("transaction conflict", "attempt", attempt+1, "err", err)
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

// readTx runs fn against one consistent snapshot.
func (s *Store) readTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// notFound maps pgx.ErrNoRows to the caller's domain error.
func notFound(err, domain error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain
	}
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key, action string, duplicate error) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO lifesim.idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return duplicate
	}
	return nil
}
