// Package snapshot keeps a history of follower counts so the status filler
// can show how an account moved over the last day.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSnapshot is returned by Record for an empty account.
var ErrInvalidSnapshot = errors.New("snapshot: account is required")

// Snapshot is one recorded follower count.
type Snapshot struct {
	ID         int64
	Account    string
	Followers  uint64
	RecordedAt time.Time
}

// SQLiteRepository stores snapshots in the follower_snapshots table.
// Times are stored as Unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record stores the follower count of account at the given time.
func (r *SQLiteRepository) Record(ctx context.Context, account string, followers uint64, at time.Time) error {
	if account == "" {
		return ErrInvalidSnapshot
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follower_snapshots (account, followers, recorded_at) VALUES (?, ?, ?)`,
		account, int64(followers), at.UnixMilli(), //nolint:gosec // follower counts fit in int64
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// OldestSince returns the earliest snapshot of account recorded at or after
// since. ok is false when there is none.
func (r *SQLiteRepository) OldestSince(ctx context.Context, account string, since time.Time) (Snapshot, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account, followers, recorded_at
		FROM follower_snapshots
		WHERE account = ? AND recorded_at >= ?
		ORDER BY recorded_at, id
		LIMIT 1`,
		account, since.UnixMilli(),
	)

	var (
		s         Snapshot
		followers int64
		at        int64
	)
	if err := row.Scan(&s.ID, &s.Account, &followers, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("querying oldest snapshot: %w", err)
	}
	s.Followers = uint64(followers) //nolint:gosec // written from a uint64
	s.RecordedAt = time.UnixMilli(at).UTC()
	return s, true, nil
}

// Prune deletes every snapshot recorded before the given time and reports
// how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM follower_snapshots WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
