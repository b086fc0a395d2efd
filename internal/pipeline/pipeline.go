// Package pipeline runs a scanned code through the gate, the decoder, the
// duplicate guard and the negotiator, and reports one Outcome per admitted
// read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/timeclock/internal/dedup"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/logging"
	"github.com/pbaille/timeclock/internal/scangate"
)

// SuccessDismiss is how long success and info outcomes stay visible
const SuccessDismiss = 3 * time.Second

// Kind classifies an Outcome for display
type Kind int

const (
	KindSuccess Kind = iota
	KindInfo
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindInfo:
		return "info"
	default:
		return "error"
	}
}

// Outcome is the user-visible result of one scan. Dismiss is zero for
// errors, which stay until dismissed.
type Outcome struct {
	Kind      Kind
	Message   string
	Err       error
	Event     domain.ScanEvent
	Intent    *domain.Intent
	Timesheet *domain.Timesheet
	Dismiss   time.Duration
}

// Decoder extracts an intent from scanned text
type Decoder interface {
	Decode(raw string) (domain.Intent, error)
}

// Submitter delivers an intent to the backend
type Submitter interface {
	Submit(ctx context.Context, in domain.Intent, sess domain.Session) (*domain.Timesheet, error)
}

// Pipeline processes scans for one session
type Pipeline struct {
	gate      *scangate.Gate
	decoder   Decoder
	guard     dedup.Guard
	submitter Submitter
	sess      domain.Session
	log       *logging.Logger
}

// New creates a Pipeline for sess
func New(gate *scangate.Gate, decoder Decoder, guard dedup.Guard, submitter Submitter, sess domain.Session, log *logging.Logger) *Pipeline {
	return &Pipeline{
		gate:      gate,
		decoder:   decoder,
		guard:     guard,
		submitter: submitter,
		sess:      sess,
		log:       log,
	}
}

// Gate returns the gate guarding this pipeline
func (p *Pipeline) Gate() *scangate.Gate {
	return p.gate
}

// Session returns the session scans are recorded for
func (p *Pipeline) Session() domain.Session {
	return p.sess
}

// NewEvent wraps scanned text in a ScanEvent
func NewEvent(text, source string) domain.ScanEvent {
	return domain.ScanEvent{
		ID:         uuid.NewString(),
		Text:       text,
		Source:     source,
		ReceivedAt: time.Now(),
	}
}

// Handle processes one read. admitted is false when the gate dropped the
// read, in which case nothing is reported. The gate is released on every
// path once admitted, panics included.
func (p *Pipeline) Handle(ctx context.Context, ev domain.ScanEvent) (out Outcome, admitted bool) {
	if r := p.gate.Admit(ev.Text); r != scangate.Admitted {
		p.log.Infof("scan %s dropped: %s", ev.ID, r)
		return Outcome{}, false
	}
	admitted = true

	cooldown := true
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("scan %s: panic: %v", ev.ID, r)
			out = failure(ev, fmt.Errorf("internal error: %v", r))
		}
		p.gate.Release(cooldown)
	}()

	out = p.process(ctx, ev, &cooldown)
	return out, admitted
}

func (p *Pipeline) process(ctx context.Context, ev domain.ScanEvent, cooldown *bool) Outcome {
	in, err := p.decoder.Decode(ev.Text)
	if err != nil {
		*cooldown = false
		p.log.Warnf("scan %s: decode: %v", ev.ID, err)
		return failure(ev, err)
	}
	if ev.Source != "" {
		in.Source = ev.Source
	}

	if in.EmployeeID != nil && *in.EmployeeID != p.sess.User.ID {
		p.log.Warnf("scan %s: code for employee %d, session user %d", ev.ID, *in.EmployeeID, p.sess.User.ID)
		return withIntent(failure(ev, domain.ErrUnauthorized), in)
	}

	seen, err := p.guard.Seen(ctx, p.sess, in)
	if err != nil {
		p.log.Warnf("scan %s: duplicate check failed, continuing: %v", ev.ID, err)
		seen = false
	}
	if seen {
		return withIntent(failure(ev, domain.ErrDuplicateToday), in)
	}

	ts, err := p.submitter.Submit(ctx, in, p.sess)
	if err != nil {
		p.log.Errorf("scan %s: %v", ev.ID, err)
		p.release(ctx, ev, in)
		return withIntent(failure(ev, err), in)
	}

	p.log.Infof("scan %s: %s recorded for planning %d", ev.ID, in.ServiceLabel, in.PlanningID)
	return Outcome{
		Kind:      KindSuccess,
		Message:   successMessage(in, ts),
		Event:     ev,
		Intent:    &in,
		Timesheet: ts,
		Dismiss:   SuccessDismiss,
	}
}

// release undoes the guard's record of a code that was never stored
// server-side, so the user can scan it again
func (p *Pipeline) release(ctx context.Context, ev domain.ScanEvent, in domain.Intent) {
	r, ok := p.guard.(dedup.Releaser)
	if !ok {
		return
	}
	if err := r.Release(context.WithoutCancel(ctx), p.sess, in); err != nil {
		p.log.Warnf("scan %s: release ledger entry: %v", ev.ID, err)
	}
}

func successMessage(in domain.Intent, ts *domain.Timesheet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s recorded", in.ServiceLabel)
	if in.SiteName != "" {
		fmt.Fprintf(&sb, " at %s", in.SiteName)
	}
	fmt.Fprintf(&sb, " (site %d, planning %d)", in.SiteID, in.PlanningID)
	if ts != nil && ts.ID != 0 {
		fmt.Fprintf(&sb, ", id %d", ts.ID)
	}
	return sb.String()
}

func failure(ev domain.ScanEvent, err error) Outcome {
	return Outcome{Kind: KindError, Message: Message(err), Err: err, Event: ev}
}

func withIntent(o Outcome, in domain.Intent) Outcome {
	o.Intent = &in
	return o
}

// Message returns the text shown to the user for err
func Message(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return domain.ErrAuth.Error()
	case errors.Is(err, domain.ErrDuplicateToday):
		return "This QR code was already used today by your account"
	case errors.Is(err, domain.ErrUnauthorized):
		return "This QR code was issued for another employee"
	case errors.Is(err, domain.ErrExpired):
		return "QR code expired, ask for a fresh one: " + err.Error()
	case errors.Is(err, domain.ErrInvalidFormat):
		return "Unrecognized QR code: " + err.Error()
	default:
		return err.Error()
	}
}
