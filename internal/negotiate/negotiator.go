// Package negotiate delivers attendance records to the backend, walking an
// ordered list of endpoint, body shape and encoding combinations until one
// is accepted.
package negotiate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pbaille/timeclock/internal/backend"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/logging"
)

// DefaultAttemptTimeout bounds a single attempt
const DefaultAttemptTimeout = 30 * time.Second

// Poster sends one request body; backend.Client implements it
type Poster interface {
	Post(ctx context.Context, path, contentType string, body []byte, token string) (*backend.Response, error)
}

// SubmissionError reports that no attempt created a record
type SubmissionError struct {
	Status   int    // last HTTP status observed, 0 if no attempt got a response
	Body     string // readable text of that response body
	Attempts int
	Err      error // last transport error, if any
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil && e.Body != "":
		return fmt.Sprintf("submission failed after %d attempt(s): %v (last status %d: %s)", e.Attempts, e.Err, e.Status, e.Body)
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("submission failed after %d attempt(s): %v (last status %d)", e.Attempts, e.Err, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("submission failed after %d attempt(s): %v", e.Attempts, e.Err)
	case e.Body != "":
		return fmt.Sprintf("submission failed (status %d): %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("submission failed (status %d)", e.Status)
	default:
		return "submission failed: no attempts configured"
	}
}

// Unwrap exposes domain.ErrSubmissionFailed and the transport error
func (e *SubmissionError) Unwrap() []error {
	if e.Err != nil {
		return []error{domain.ErrSubmissionFailed, e.Err}
	}
	return []error{domain.ErrSubmissionFailed}
}

// Negotiator submits records through a Poster
type Negotiator struct {
	poster   Poster
	attempts []Attempt
	timeout  time.Duration
	log      *logging.Logger
	now      func() time.Time
	newCode  func() string
}

// New creates a Negotiator. A nil attempts list means DefaultAttempts and a
// zero timeout means DefaultAttemptTimeout.
func New(poster Poster, attempts []Attempt, timeout time.Duration, log *logging.Logger) *Negotiator {
	if attempts == nil {
		attempts = DefaultAttempts
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Negotiator{
		poster:   poster,
		attempts: attempts,
		timeout:  timeout,
		log:      log,
		now:      time.Now,
		newCode:  NewCode,
	}
}

// Attempts returns the configured attempt order
func (n *Negotiator) Attempts() []Attempt {
	return n.attempts
}

// Submit builds a record for in and delivers it. A 401 stops immediately
// with domain.ErrAuth; 404 and 415 move on to the next attempt, as do
// transport failures; any other status ends with a SubmissionError.
func (n *Negotiator) Submit(ctx context.Context, in domain.Intent, sess domain.Session) (*domain.Timesheet, error) {
	rec, err := BuildRecord(in, sess, n.newCode(), n.now())
	if err != nil {
		return nil, err
	}

	if len(n.attempts) == 0 {
		return nil, &SubmissionError{}
	}

	var lastStatus int
	var lastBody string
	for i, a := range n.attempts {
		last := i == len(n.attempts)-1

		body, contentType, err := encode(rec, a)
		if err != nil {
			return nil, err
		}

		actx, cancel := context.WithTimeout(ctx, n.timeout)
		resp, err := n.poster.Post(actx, a.Path, contentType, body, sess.Token)
		cancel()

		if err != nil {
			n.log.Warnf("submit %s: %v", a, err)
			if last || ctx.Err() != nil {
				return nil, &SubmissionError{Status: lastStatus, Body: lastBody, Attempts: i + 1, Err: err}
			}
			continue
		}
		lastStatus, lastBody = resp.Status, backend.ErrorText(resp.Body)

		switch {
		case resp.OK():
			n.log.Infof("submit %s: created %s", a, rec.UniqueCode)
			return parseCreated(resp.Body, rec), nil
		case resp.Status == http.StatusUnauthorized:
			return nil, fmt.Errorf("submit %s: %w", a.Path, domain.ErrAuth)
		case !last && (resp.Status == http.StatusNotFound || resp.Status == http.StatusUnsupportedMediaType):
			n.log.Infof("submit %s: status %d, trying next", a, resp.Status)
			continue
		default:
			return nil, &SubmissionError{
				Status:   lastStatus,
				Body:     lastBody,
				Attempts: i + 1,
			}
		}
	}

	// unreachable: the last attempt always returns
	return nil, &SubmissionError{Attempts: len(n.attempts)}
}

// parseCreated reads the created record, filling anything the server left
// out from what was sent
func parseCreated(body []byte, rec domain.Record) *domain.Timesheet {
	var ts domain.Timesheet
	if len(body) > 0 {
		if err := json.Unmarshal(body, &ts); err != nil {
			ts = domain.Timesheet{}
		}
	}

	if ts.UniqueCode == "" {
		ts.UniqueCode = rec.UniqueCode
	}
	if ts.SiteID == 0 {
		ts.SiteID = rec.SiteID
	}
	if ts.PlanningID == 0 {
		ts.PlanningID = rec.PlanningID
	}
	if ts.TimesheetTypeID == 0 {
		ts.TimesheetTypeID = rec.TimesheetTypeID
	}
	if ts.Details == "" {
		ts.Details = rec.Details
	}
	if ts.Start.IsZero() {
		ts.Start = rec.Start
	}
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = ts.Start
	}
	return &ts
}
