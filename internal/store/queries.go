package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crewbot/internal/presence"
)

const profileColumns = `uid, display_name, last_seen, total_playtime`

func scanProfile(row interface{ Scan(...any) error }) (presence.PlayerProfile, error) {
	var profile presence.PlayerProfile
	var lastSeen sql.NullString
	var playtime float64
	if err := row.Scan(&profile.UID, &profile.DisplayName, &lastSeen, &playtime); err != nil {
		return profile, err
	}
	if lastSeen.Valid {
		t, err := parseTime(lastSeen.String)
		if err != nil {
			return profile, err
		}
		profile.LastSeen = t
	}
	profile.TotalPlaytime = fromSeconds(playtime)
	return profile, nil
}

// Profile retrieves a profile by uid
func (db *DB) Profile(ctx context.Context, uid string) (presence.PlayerProfile, error) {
	row := db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM player_profiles WHERE uid = ?`, uid)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, ErrNotFound
	}
	if err != nil {
		return profile, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// ProfileByName retrieves the profile currently using a display name,
// ignoring case. If several match, the most recently seen wins
func (db *DB) ProfileByName(ctx context.Context, name string) (presence.PlayerProfile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM player_profiles
		WHERE display_name = ? COLLATE NOCASE
		ORDER BY last_seen DESC
		LIMIT 1`, name)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return profile, ErrNotFound
	}
	if err != nil {
		return profile, fmt.Errorf("failed to get profile by name: %w", err)
	}
	return profile, nil
}

// KnownNames maps every stored uid to its current display name
func (db *DB) KnownNames(ctx context.Context) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT uid, display_name FROM player_profiles`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	names := map[string]string{}
	for rows.Next() {
		var uid, name string
		if err := rows.Scan(&uid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		names[uid] = name
	}
	return names, rows.Err()
}

// NameHistory lists the name changes of a profile, oldest first
func (db *DB) NameHistory(ctx context.Context, uid string) ([]presence.NameChangeRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT uid, old_name, new_name, changed_at FROM name_changes
		WHERE uid = ?
		ORDER BY changed_at, id`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list name changes: %w", err)
	}
	defer rows.Close()

	var history []presence.NameChangeRecord
	for rows.Next() {
		var record presence.NameChangeRecord
		var changedAt string
		if err := rows.Scan(&record.UID, &record.OldName, &record.NewName, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan name change: %w", err)
		}
		if record.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		history = append(history, record)
	}
	return history, rows.Err()
}

// TopPlaytime lists the profiles with the most playtime
func (db *DB) TopPlaytime(ctx context.Context, limit int) ([]presence.PlayerProfile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+profileColumns+` FROM player_profiles
		ORDER BY total_playtime DESC, uid
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top playtime: %w", err)
	}
	defer rows.Close()

	var profiles []presence.PlayerProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// Sessions lists the most recent sessions of a profile, newest first
func (db *DB) Sessions(ctx context.Context, uid string, limit int) ([]presence.Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, uid, region, start_time, end_time, duration FROM sessions
		WHERE uid = ?
		ORDER BY start_time DESC
		LIMIT ?`, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []presence.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// OpenSessions lists the sessions without an end, with the last time
// their profile was seen
func (db *DB) OpenSessions(ctx context.Context) ([]presence.ResumedSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.uid, s.region, s.start_time, s.end_time, s.duration, p.last_seen
		FROM sessions s LEFT JOIN player_profiles p ON p.uid = s.uid
		WHERE s.end_time IS NULL
		ORDER BY s.uid, s.start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	var open []presence.ResumedSession
	for rows.Next() {
		var lastSeen sql.NullString
		sess, err := scanSession(rows, &lastSeen)
		if err != nil {
			return nil, err
		}
		resumed := presence.ResumedSession{Session: sess}
		if lastSeen.Valid {
			if resumed.LastSeen, err = parseTime(lastSeen.String); err != nil {
				return nil, err
			}
		}
		open = append(open, resumed)
	}
	return open, rows.Err()
}

func scanSession(rows *sql.Rows, extra ...any) (presence.Session, error) {
	var sess presence.Session
	var start string
	var end sql.NullString
	var duration sql.NullFloat64
	dest := append([]any{&sess.ID, &sess.UID, &sess.Region, &start, &end, &duration}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return sess, fmt.Errorf("failed to scan session: %w", err)
	}

	var err error
	if sess.Start, err = parseTime(start); err != nil {
		return sess, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return sess, err
		}
		sess.End = &t
		sess.Duration = fromSeconds(duration.Float64)
	}
	return sess, nil
}
