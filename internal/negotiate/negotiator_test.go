package negotiate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pbaille/timeclock/internal/backend"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/logging"
)

type call struct {
	path, contentType, token string
	body                     []byte
}

// fakePoster replays a scripted list of statuses; a negative status is a
// transport error
type fakePoster struct {
	statuses []int
	bodies   map[int]string
	calls    []call
}

func (f *fakePoster) Post(ctx context.Context, path, contentType string, body []byte, token string) (*backend.Response, error) {
	f.calls = append(f.calls, call{path, contentType, token, body})
	i := len(f.calls) - 1
	if i >= len(f.statuses) {
		return nil, fmt.Errorf("unexpected call %d", i+1)
	}
	if f.statuses[i] < 0 {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", domain.ErrNetwork)
	}
	return &backend.Response{Status: f.statuses[i], Body: []byte(f.bodies[i])}, nil
}

var testSession = domain.Session{
	User:  domain.User{ID: 202, DisplayName: "JACKSON", Email: "jackson@example.com"},
	Token: "tok",
}

var testIntent = domain.Intent{
	SiteID:          1,
	PlanningID:      2,
	TimesheetTypeID: 3,
	SiteName:        "Main Site",
	ServiceLabel:    "break-start",
	Source:          domain.SourceQRScan,
}

func newTestNegotiator(p Poster) *Negotiator {
	n := New(p, nil, time.Second, logging.Discard())
	n.now = func() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC) }
	n.newCode = func() string { return "TC-TEST" }
	return n
}

func TestSubmitFallsThroughToThirdAttempt(t *testing.T) {
	p := &fakePoster{
		statuses: []int{404, 415, 200},
		bodies:   map[int]string{2: `{"id":99,"unique_code":"TC-TEST","site_id":1,"planning_id":2}`},
	}
	n := newTestNegotiator(p)

	ts, err := n.Submit(context.Background(), testIntent, testSession)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ts.ID != 99 || ts.TimesheetTypeID != 3 {
		t.Errorf("timesheet = %+v", ts)
	}
	if len(p.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(p.calls))
	}

	third := p.calls[2]
	if third.path != "/Timesheet" || third.contentType != "application/json" || third.token != "tok" {
		t.Errorf("third call = %s %s %s", third.path, third.contentType, third.token)
	}
	var lb legacyBody
	if err := json.Unmarshal(third.body, &lb); err != nil {
		t.Fatalf("legacy body: %v", err)
	}
	if lb.EmployeeID != 202 || lb.PlanningID != 2 || lb.Code != "TC-TEST" || lb.Start != "2026-05-04T08:00:00Z" {
		t.Errorf("legacy body = %+v", lb)
	}
}

func TestSubmitStopsOnUnauthorized(t *testing.T) {
	p := &fakePoster{statuses: []int{401, 200}}
	_, err := newTestNegotiator(p).Submit(context.Background(), testIntent, testSession)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
	if len(p.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(p.calls))
	}
}

func TestSubmitStopsOnServerError(t *testing.T) {
	p := &fakePoster{
		statuses: []int{404, 500},
		bodies:   map[int]string{1: `{"message":"Planning 2 is closed"}`},
	}
	_, err := newTestNegotiator(p).Submit(context.Background(), testIntent, testSession)

	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SubmissionError", err)
	}
	if se.Status != 500 || se.Body != "Planning 2 is closed" || se.Attempts != 2 {
		t.Errorf("submission error = %+v", se)
	}
	if !errors.Is(err, domain.ErrSubmissionFailed) || errors.Is(err, domain.ErrNetwork) {
		t.Errorf("error chain wrong: %v", err)
	}
}

func TestSubmitExhaustsAttempts(t *testing.T) {
	statuses := make([]int, len(DefaultAttempts))
	for i := range statuses {
		statuses[i] = 404
	}
	p := &fakePoster{statuses: statuses}

	_, err := newTestNegotiator(p).Submit(context.Background(), testIntent, testSession)
	var se *SubmissionError
	if !errors.As(err, &se) || se.Status != 404 || se.Attempts != len(DefaultAttempts) {
		t.Fatalf("error = %v, want SubmissionError after every attempt", err)
	}
	if len(p.calls) != len(DefaultAttempts) {
		t.Errorf("calls = %d, want %d", len(p.calls), len(DefaultAttempts))
	}
}

func TestSubmitContinuesAfterNetworkError(t *testing.T) {
	p := &fakePoster{statuses: []int{-1, 201}}
	if _, err := newTestNegotiator(p).Submit(context.Background(), testIntent, testSession); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(p.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(p.calls))
	}
}

func TestSubmitNetworkErrorOnLastAttempt(t *testing.T) {
	p := &fakePoster{statuses: []int{-1}}
	n := newTestNegotiator(p)
	n.attempts = DefaultAttempts[:1]

	_, err := n.Submit(context.Background(), testIntent, testSession)
	if !errors.Is(err, domain.ErrSubmissionFailed) || !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("error = %v, want submission and network failure", err)
	}
}

func TestSubmitNetworkErrorKeepsLastStatus(t *testing.T) {
	p := &fakePoster{
		statuses: []int{404, -1},
		bodies:   map[int]string{0: `{"message":"No route for /timesheets"}`},
	}
	n := newTestNegotiator(p)
	n.attempts = DefaultAttempts[:2]

	_, err := n.Submit(context.Background(), testIntent, testSession)
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SubmissionError", err)
	}
	if se.Status != 404 || se.Body != "No route for /timesheets" || se.Attempts != 2 {
		t.Errorf("SubmissionError = %+v", se)
	}
	if !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "404") || !strings.Contains(msg, "No route") {
		t.Errorf("message = %q", msg)
	}
}

func TestSubmitFallsBackToSentRecord(t *testing.T) {
	p := &fakePoster{statuses: []int{204}}
	ts, err := newTestNegotiator(p).Submit(context.Background(), testIntent, testSession)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ts.UniqueCode != "TC-TEST" || ts.SiteID != 1 || ts.PlanningID != 2 || ts.CreatedAt.IsZero() {
		t.Errorf("timesheet = %+v", ts)
	}
	if ts.Method() != domain.SourceQRScan {
		t.Errorf("method = %q", ts.Method())
	}
}

func TestEncodeForm(t *testing.T) {
	rec, err := BuildRecord(testIntent, testSession, "TC-X", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	body, ct, err := encode(rec, Attempt{"/timesheets", ShapeModern, EncodingForm})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ct != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", ct)
	}
	v, err := url.ParseQuery(string(body))
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if v.Get("planning_id") != "2" || v.Get("unique_code") != "TC-X" || !strings.Contains(v.Get("details"), `"method":"qr_scan"`) {
		t.Errorf("form = %v", v)
	}
}

func TestLegacyDetailsTruncated(t *testing.T) {
	in := testIntent
	in.SiteName = strings.Repeat("é", 400)
	rec, err := BuildRecord(in, testSession, "TC-X", time.Now())
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}

	body, _, err := encode(rec, Attempt{"/Timesheet", ShapeLegacy, EncodingJSON})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var lb legacyBody
	if err := json.Unmarshal(body, &lb); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if n := utf8.RuneCountInString(lb.Details); n != LegacyDetailsLimit {
		t.Errorf("legacy details length = %d, want %d", n, LegacyDetailsLimit)
	}
	if !utf8.ValidString(lb.Details) {
		t.Errorf("legacy details split a rune")
	}

	modern, _, _ := encode(rec, Attempt{"/timesheets", ShapeModern, EncodingJSON})
	var mb modernBody
	json.Unmarshal(modern, &mb)
	if mb.Details != rec.Details {
		t.Errorf("modern details were altered")
	}
}

func TestBuildRecordEmployee(t *testing.T) {
	rec, _ := BuildRecord(testIntent, testSession, "c", time.Now())
	if rec.EmployeeID != 202 {
		t.Errorf("employee = %d, want session user", rec.EmployeeID)
	}

	other := 7
	in := testIntent
	in.EmployeeID = &other
	rec, _ = BuildRecord(in, testSession, "c", time.Now())
	if rec.EmployeeID != 7 {
		t.Errorf("employee = %d, want code employee", rec.EmployeeID)
	}
}

func TestNewCodeUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		c := NewCode()
		if !strings.HasPrefix(c, "TC-") {
			t.Fatalf("code %q lacks prefix", c)
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		if c <= prev {
			t.Fatalf("code %q not after %q", c, prev)
		}
		seen[c] = true
		prev = c
	}
}

func TestParseAttempts(t *testing.T) {
	got, err := ParseAttempts("")
	if err != nil || len(got) != len(DefaultAttempts) {
		t.Fatalf("empty = %v, %v", got, err)
	}

	got, err = ParseAttempts(" timesheets:modern:json , /Timesheet:legacy:form")
	if err != nil {
		t.Fatalf("ParseAttempts: %v", err)
	}
	want := []Attempt{{"/timesheets", ShapeModern, EncodingJSON}, {"/Timesheet", ShapeLegacy, EncodingForm}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, bad := range []string{"/x:modern", "/x:odd:json", "/x:modern:xml", ","} {
		if _, err := ParseAttempts(bad); err == nil {
			t.Errorf("ParseAttempts(%q) accepted", bad)
		}
	}
}
