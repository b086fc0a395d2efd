// Package dedup keeps a code from producing more than one attendance
// record per user and calendar day.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/logging"
)

// Strategy names accepted in configuration
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// ParseStrategy normalizes a strategy name; case and surrounding spaces
// are ignored.
func ParseStrategy(s string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case StrategyLocal, StrategyRemote:
		return v, nil
	default:
		return "", fmt.Errorf("unknown dedup strategy %q: want local or remote", s)
	}
}

// Guard reports whether an intent was already used today by the session user
type Guard interface {
	Seen(ctx context.Context, sess domain.Session, in domain.Intent) (bool, error)
}

// Releaser undoes a Seen that recorded the intent, for attempts that
// never reached the backend
type Releaser interface {
	Release(ctx context.Context, sess domain.Session, in domain.Intent) error
}

// Day returns the ledger key of t in loc
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DayBounds returns [start of day, start of next day) around t in loc
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Ledger is the persistent per-user, per-day set of used fingerprints
type Ledger interface {
	MarkSeen(userID int, day, fingerprint, payload string) (bool, error)
	Forget(userID int, day, fingerprint string) error
}

// Local checks and records intents in a persistent ledger
type Local struct {
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
}

// NewLocal creates a ledger-backed guard computing days in loc
func NewLocal(ledger Ledger, loc *time.Location) *Local {
	if loc == nil {
		loc = time.Local
	}
	return &Local{ledger: ledger, loc: loc, now: time.Now}
}

// Seen inserts the intent's fingerprint for today and reports whether it
// was already there. Entries from earlier days never match.
func (g *Local) Seen(ctx context.Context, sess domain.Session, in domain.Intent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	seen, err := g.ledger.MarkSeen(sess.User.ID, Day(g.now(), g.loc), in.Fingerprint(), in.Raw)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return seen, nil
}

// Release forgets today's entry for the intent
func (g *Local) Release(ctx context.Context, sess domain.Session, in domain.Intent) error {
	return g.ledger.Forget(sess.User.ID, Day(g.now(), g.loc), in.Fingerprint())
}

// HistorySource lists a user's attendance records from the backend
type HistorySource interface {
	History(ctx context.Context, userID int, token string) ([]domain.Timesheet, error)
}

// Remote checks today's server history instead of local state
type Remote struct {
	history HistorySource
	loc     *time.Location
	now     func() time.Time
	log     *logging.Logger
}

// NewRemote creates a history-backed guard
func NewRemote(history HistorySource, loc *time.Location, log *logging.Logger) *Remote {
	if loc == nil {
		loc = time.Local
	}
	return &Remote{history: history, loc: loc, now: time.Now, log: log}
}

// Seen fails open: when history cannot be fetched the intent is treated
// as unused.
func (g *Remote) Seen(ctx context.Context, sess domain.Session, in domain.Intent) (bool, error) {
	entries, err := g.history.History(ctx, sess.User.ID, sess.Token)
	if err != nil {
		g.log.Warnf("duplicate check skipped, history unavailable: %v", err)
		return false, nil
	}

	start, end := DayBounds(g.now(), g.loc)
	for _, e := range entries {
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		if e.SiteID == in.SiteID && e.PlanningID == in.PlanningID {
			return true, nil
		}
	}
	return false, nil
}
