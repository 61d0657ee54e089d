package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"crewbot/internal/metrics"
	"crewbot/internal/presence"

	"github.com/rs/zerolog/log"
)

// Receives a message whenever data is lost
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// The sink commits the result of every tick in its own transaction.
// Results that could not be committed wait in a bounded backlog and are
// retried, oldest first, on the next flush
type Sink struct {
	db         *DB
	maxBacklog int
	alerter    Alerter

	mu      sync.Mutex
	backlog []presence.TickResult
	pending int
}

func NewSink(db *DB, maxBacklogEvents int, alerter Alerter) *Sink {
	return &Sink{db: db, maxBacklog: maxBacklogEvents, alerter: alerter}
}

// Queue the result of a tick and commit everything pending.
// Returns an error wrapping ErrPersistence if some batch could not be
// committed; those batches are kept for the next call
func (s *Sink) Flush(ctx context.Context, res presence.TickResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !res.Empty() {
		s.backlog = append(s.backlog, res)
		s.pending += res.Size()
		s.trim(ctx)
	}
	defer func() { metrics.SinkBacklogEvents.Set(float64(s.pending)) }()

	for len(s.backlog) > 0 {
		batch := s.backlog[0]
		if err := s.commit(ctx, batch); err != nil {
			metrics.SinkFlushFailures.Inc()
			log.Warn().Err(err).Int("batches", len(s.backlog)).Int("events", s.pending).Msg("Flush failed, keeping backlog")
			return fmt.Errorf("%w: tick at %s: %w", ErrPersistence, batch.At.Format(timeFormat), err)
		}
		s.backlog = s.backlog[1:]
		s.pending -= batch.Size()
		log.Debug().Int("events", len(batch.Events)).Int("credits", len(batch.Credits)).Msg("Committed tick")
	}
	return nil
}

// Number of events and credits waiting to be committed
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Drop the oldest batches until the backlog fits
func (s *Sink) trim(ctx context.Context) {
	dropped, batches := 0, 0
	for s.pending > s.maxBacklog && len(s.backlog) > 0 {
		dropped += s.backlog[0].Size()
		s.pending -= s.backlog[0].Size()
		s.backlog = s.backlog[1:]
		batches++
	}
	if dropped == 0 {
		return
	}
	metrics.SinkDroppedEvents.Add(float64(dropped))
	log.Error().Int("dropped_events", dropped).Int("dropped_batches", batches).Int("limit", s.maxBacklog).
		Msg("Persistence backlog overflowed, dropping oldest ticks")
	if s.alerter != nil {
		s.alerter.Alert(ctx, fmt.Sprintf("The store has been unreachable for too long: dropped %d events from %d ticks", dropped, batches))
	}
}

func (s *Sink) commit(ctx context.Context, res presence.TickResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, event := range res.Events {
		if err := applyEvent(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to apply %s for %s: %w", event.Kind, event.UID, err)
		}
	}
	for _, credit := range res.Credits {
		if err := applyCredit(ctx, tx, credit, res); err != nil {
			return fmt.Errorf("failed to credit %s: %w", credit.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func applyEvent(ctx context.Context, tx *sql.Tx, event presence.Event) error {
	var err error
	switch event.Kind {
	case presence.ProfileCreated:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_profiles (uid, display_name, last_seen, total_playtime)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(uid) DO NOTHING`,
			event.UID, event.DisplayName, formatTime(event.At))

	case presence.NameChanged:
		_, err = tx.ExecContext(ctx,
			`UPDATE player_profiles SET display_name = ? WHERE uid = ?`,
			event.NewName, event.UID)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO name_changes (uid, old_name, new_name, changed_at)
				VALUES (?, ?, ?, ?)`,
				event.UID, event.OldName, event.NewName, formatTime(event.At))
		}

	case presence.SessionOpened:
		sess := event.Session
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, uid, region, start_time)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			sess.ID, sess.UID, sess.Region, formatTime(sess.Start))

	case presence.SessionClosed:
		sess := event.Session
		if sess.End == nil {
			return fmt.Errorf("%w: closed session %s has no end", ErrDataInconsistency, sess.ID)
		}
		// Inserts the session if its opening was lost, never reopens or rewrites a closed one
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, uid, region, start_time, end_time, duration)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET end_time = excluded.end_time, duration = excluded.duration
			WHERE sessions.end_time IS NULL`,
			sess.ID, sess.UID, sess.Region, formatTime(sess.Start), formatTime(*sess.End), seconds(sess.Duration))
	}
	return err
}

// A missing profile means the tick that created it was dropped from the
// backlog. It is recreated from the credit, with the playtime accrued so far
func applyCredit(ctx context.Context, tx *sql.Tx, credit presence.PlaytimeCredit, res presence.TickResult) error {
	query := `UPDATE player_profiles SET total_playtime = total_playtime + ? WHERE uid = ?`
	args := []any{seconds(credit.Playtime), credit.UID}
	if credit.Seen {
		query = `UPDATE player_profiles SET total_playtime = total_playtime + ?, last_seen = ? WHERE uid = ?`
		args = []any{seconds(credit.Playtime), formatTime(res.At), credit.UID}
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	updated, err := result.RowsAffected()
	if err != nil || updated > 0 {
		return err
	}

	if credit.DisplayName == "" {
		metrics.SinkDroppedEvents.Inc()
		log.Error().Err(ErrDataInconsistency).Str("uid", credit.UID).Dur("playtime", credit.Playtime).
			Msg("Playtime credit for a missing profile without a display name, dropping it")
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO player_profiles (uid, display_name, last_seen, total_playtime)
		VALUES (?, ?, ?, ?)`,
		credit.UID, credit.DisplayName, formatTime(res.At), seconds(credit.Playtime))
	if err != nil {
		return err
	}
	metrics.SinkRecreatedProfiles.Inc()
	log.Warn().Str("uid", credit.UID).Str("display_name", credit.DisplayName).Dur("playtime", credit.Playtime).
		Msg("Profile missing from the store, recreated from a playtime credit")
	return nil
}
