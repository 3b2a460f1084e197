// Package repository provides MySQL access for the room and subscriber
// tables. Repositories are thin: they map rows to records and leave all
// policy to the reconcile and subsync layers. Timestamp columns are
// DATETIME in UTC and rely on parseTime=true in the DSN.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// RoomRepo reads and writes the room table.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo returns a new RoomRepo bound to the given database.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span this repository and others.
func (r *RoomRepo) DB() *sql.DB { return r.db }

// RoomRecord mirrors the room table columns the reconciler touches.
// Columns owned by the CRUD API (title, description, media path) are
// deliberately absent: this process never writes them.
type RoomRecord struct {
	ID             string
	CreationTime   time.Time
	LastUpdateTime time.Time
	PasswordHash   string
	Owner          string
	Vanity         string
	IsSubRoom      bool
	Data           []byte
}

// ListByLeadingChars returns every room whose id starts with one of the
// given characters. An empty chars slice means no shard filter: all rows
// are returned. Used once at startup to hydrate the in-memory registry.
func (r *RoomRepo) ListByLeadingChars(ctx context.Context, chars []string) ([]RoomRecord, error) {
	q := `SELECT id, creation_time, last_update_time, password, owner, vanity, is_sub_room, data FROM room`
	args := make([]interface{}, 0, len(chars))
	if len(chars) > 0 {
		q += ` WHERE LEFT(id, 1) IN (` + placeholders(len(chars)) + `)`
		for _, c := range chars {
			args = append(args, c)
		}
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoomRecord
	for rows.Next() {
		var rec RoomRecord
		var password, owner, vanity sql.NullString
		var data []byte
		if err := rows.Scan(
			&rec.ID, &rec.CreationTime, &rec.LastUpdateTime,
			&password, &owner, &vanity, &rec.IsSubRoom, &data,
		); err != nil {
			return nil, err
		}
		rec.PasswordHash = password.String
		rec.Owner = owner.String
		rec.Vanity = vanity.String
		rec.Data = data
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListIDs returns the ids of every durable room, filtered to the given
// leading characters like ListByLeadingChars. The reclaimer diffs this
// set against the registry to find rooms that only exist in memory.
func (r *RoomRepo) ListIDs(ctx context.Context, chars []string) (map[string]bool, error) {
	q := `SELECT id FROM room`
	args := make([]interface{}, 0, len(chars))
	if len(chars) > 0 {
		q += ` WHERE LEFT(id, 1) IN (` + placeholders(len(chars)) + `)`
		for _, c := range chars {
			args = append(args, c)
		}
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertState writes the serialized state and last-update time for one
// room, inserting the row when it does not exist yet. creation_time is
// only set on insert; later upserts never move it.
func (r *RoomRepo) UpsertState(ctx context.Context, id string, creation, lastUpdate time.Time, data []byte) error {
	const q = `INSERT INTO room (id, creation_time, last_update_time, data)
	           VALUES (?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE last_update_time = VALUES(last_update_time), data = VALUES(data)`
	_, err := r.db.ExecContext(ctx, q, id, creation, lastUpdate, data)
	return err
}

// ClearSubRoomFlagsTx resets is_sub_room on every row. Runs inside the
// subscriber replacement transaction so readers never observe a window
// with no flags at all.
func (r *RoomRepo) ClearSubRoomFlagsTx(ctx context.Context, tx *sql.Tx) error {
	const q = `UPDATE room SET is_sub_room = 0`
	_, err := tx.ExecContext(ctx, q)
	return err
}

// MarkSubRoomsTx sets is_sub_room on every room owned by one of the given
// uids. A nil or empty owner list is a no-op.
func (r *RoomRepo) MarkSubRoomsTx(ctx context.Context, tx *sql.Tx, owners []string) error {
	if len(owners) == 0 {
		return nil
	}
	q := `UPDATE room SET is_sub_room = 1 WHERE owner IN (` + placeholders(len(owners)) + `)`
	args := make([]interface{}, 0, len(owners))
	for _, o := range owners {
		args = append(args, o)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// placeholders returns n comma-joined "?" markers for IN clauses.
func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ",")
}
