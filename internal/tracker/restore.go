package tracker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"crewbot/internal/presence"

	"github.com/rs/zerolog/log"
)

// What the tracker needs from the store at startup
type StateStore interface {
	RecoverOpenSessions(ctx context.Context, processStart time.Time, grace time.Duration) (int, error)
	OpenSessions(ctx context.Context) ([]presence.ResumedSession, error)
	KnownNames(ctx context.Context) (map[string]string, error)
	CloseSession(ctx context.Context, sess presence.Session, end time.Time) error
}

// Build the reconciler for a new process: close the sessions a previous
// run left behind, resume the ones seen within the grace period in one of
// regions, and load the display names of every known profile
func Restore(ctx context.Context, state StateStore, regions []string, processStart time.Time, grace time.Duration, options ...presence.Option) (*presence.Reconciler, error) {

	closed, err := state.RecoverOpenSessions(ctx, processStart, grace)
	if err != nil {
		return nil, fmt.Errorf("recovery sweep failed: %w", err)
	}

	open, err := state.OpenSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load open sessions: %w", err)
	}

	// No poll ever reports a region that is gone, so its sessions would never close
	resumed := make([]presence.ResumedSession, 0, len(open))
	for _, sess := range open {
		if slices.Contains(regions, sess.Region) {
			resumed = append(resumed, sess)
			continue
		}
		end := sess.LastSeen
		if end.IsZero() {
			end = sess.Start
		}
		if err := state.CloseSession(ctx, sess.Session, end); err != nil {
			return nil, err
		}
		closed++
		log.Warn().Str("uid", sess.UID).Str("session", sess.ID).Str("region", sess.Region).
			Msg("Closed open session in a region that is no longer configured")
	}

	names, err := state.KnownNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load profile names: %w", err)
	}

	log.Info().Int("closed", closed).Int("resumed", len(resumed)).Int("profiles", len(names)).Msg("Restored presence state")
	options = append(options, presence.WithResumedSessions(resumed))
	return presence.NewReconciler(names, options...), nil
}
