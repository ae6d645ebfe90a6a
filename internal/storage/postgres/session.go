package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokrith/pos-settlement/internal/domain/payment"
)

const (
	upsertSessionSQL = `INSERT INTO payment_sessions (order_id, state, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (order_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`

	selectSessionSQL = `SELECT state FROM payment_sessions WHERE order_id = $1`

	deleteSessionSQL = `DELETE FROM payment_sessions WHERE order_id = $1`
)

var _ payment.Store = (*SessionStore)(nil)

// SessionStore persists in-progress payment sessions, one JSONB row per
// order, so a terminal reload restores the cashier's work in progress.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore returns a SessionStore that uses the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Save overwrites the stored session for its order.
func (r *SessionStore) Save(ctx context.Context, s *payment.Session) error {
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertSessionSQL, s.OrderID, state, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving session for order %q: %w", s.OrderID, err)
	}
	return nil
}

// Load returns the stored session, or (nil, nil) when none exists. A row
// that no longer unmarshals, or decodes to a session without its panels, is
// deleted and reported as absent; corrupt stored state is never a hard error.
func (r *SessionStore) Load(ctx context.Context, orderID string) (*payment.Session, error) {
	var state []byte
	err := r.pool.QueryRow(ctx, selectSessionSQL, orderID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session for order %q: %w", orderID, err)
	}

	var s payment.Session
	if err := json.Unmarshal(state, &s); err != nil || !s.Valid() {
		_, _ = r.pool.Exec(ctx, deleteSessionSQL, orderID)
		return nil, nil
	}
	s.OrderID = orderID
	return &s, nil
}

// Clear removes the stored session for an order.
func (r *SessionStore) Clear(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx, deleteSessionSQL, orderID)
	if err != nil {
		return fmt.Errorf("clearing session for order %q: %w", orderID, err)
	}
	return nil
}
