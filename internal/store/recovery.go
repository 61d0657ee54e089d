package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crewbot/internal/presence"

	"github.com/rs/zerolog/log"
)

type orphan struct {
	id       string
	uid      string
	start    time.Time
	lastSeen time.Time
}

// RecoverOpenSessions closes the sessions a previous run left open.
// A session is closed at the last time its profile was seen when that
// happened before processStart - grace; more recent ones are left open
// so they can be resumed. When a uid has several open sessions, all but
// the newest are closed regardless. Returns the number of sessions closed
func (db *DB) RecoverOpenSessions(ctx context.Context, processStart time.Time, grace time.Duration) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orphans, err := loadOrphans(ctx, tx)
	if err != nil {
		return 0, err
	}

	cutoff := processStart.Add(-grace)
	closed := 0
	for i, o := range orphans {
		end := o.lastSeen
		newerOpen := i > 0 && orphans[i-1].uid == o.uid
		if newerOpen {
			// Ordered newest first, so the previous row is the next session of the uid
			if next := orphans[i-1].start; next.Before(end) {
				end = next
			}
			log.Error().Err(ErrDataInconsistency).Str("uid", o.uid).Str("session", o.id).
				Msg("More than one open session for the same uid, closing the older one")
		} else if !end.Before(cutoff) {
			continue
		}
		if end.Before(o.start) {
			end = o.start
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET end_time = ?, duration = ?
			WHERE id = ? AND end_time IS NULL`,
			formatTime(end), seconds(end.Sub(o.start)), o.id)
		if err != nil {
			return 0, fmt.Errorf("failed to close session %s: %w", o.id, err)
		}
		log.Info().Str("uid", o.uid).Str("session", o.id).Time("end", end).Msg("Closed orphaned session")
		closed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recovery: %w", err)
	}
	return closed, nil
}

// CloseSession ends an open session at end, or at its start if end is earlier.
// A session that is already closed is left untouched
func (db *DB) CloseSession(ctx context.Context, sess presence.Session, end time.Time) error {
	if end.Before(sess.Start) {
		end = sess.Start
	}
	_, err := db.ExecContext(ctx, `
		UPDATE sessions SET end_time = ?, duration = ?
		WHERE id = ? AND end_time IS NULL`,
		formatTime(end), seconds(end.Sub(sess.Start)), sess.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to close session %s: %w", ErrPersistence, sess.ID, err)
	}
	return nil
}

// Open sessions ordered by uid, newest first. A missing last seen
// falls back to the session start
func loadOrphans(ctx context.Context, tx *sql.Tx) ([]orphan, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT s.id, s.uid, s.start_time, p.last_seen
		FROM sessions s LEFT JOIN player_profiles p ON p.uid = s.uid
		WHERE s.end_time IS NULL
		ORDER BY s.uid, s.start_time DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	var orphans []orphan
	for rows.Next() {
		var o orphan
		var start string
		var lastSeen sql.NullString
		if err := rows.Scan(&o.id, &o.uid, &start, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan open session: %w", err)
		}
		if o.start, err = parseTime(start); err != nil {
			return nil, err
		}
		o.lastSeen = o.start
		if lastSeen.Valid {
			if o.lastSeen, err = parseTime(lastSeen.String); err != nil {
				return nil, err
			}
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}
