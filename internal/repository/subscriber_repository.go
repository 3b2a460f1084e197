package repository

import (
	"context"
	"database/sql"

	"github.com/roomshare/roomd/internal/model"
)

// SubscriberRepo writes the subscriber table. The table is a full mirror
// of the billing provider's active subscriptions and is only ever
// replaced wholesale, never patched row by row.
type SubscriberRepo struct {
	db *sql.DB
}

// NewSubscriberRepo returns a new SubscriberRepo bound to the given database.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

// ReplaceAllTx deletes every subscriber row and inserts the given set in
// one bulk statement. The caller owns the transaction; nothing is
// committed here.
func (s *SubscriberRepo) ReplaceAllTx(ctx context.Context, tx *sql.Tx, subs []model.SubscriberRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriber`); err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	q := `INSERT INTO subscriber (customer_id, email, status, uid) VALUES `
	args := make([]interface{}, 0, len(subs)*4)
	for i, sub := range subs {
		if i > 0 {
			q += ","
		}
		q += "(?, ?, ?, ?)"
		args = append(args, sub.CustomerID, sub.Email, sub.Status, sub.UID)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// Count returns the number of mirrored subscriber rows. Exposed for the
// ops status endpoint.
func (s *SubscriberRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriber`).Scan(&n)
	return n, err
}
