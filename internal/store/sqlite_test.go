package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pbaille/timeclock/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "timeclock.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadSession(); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("LoadSession on empty db = %v, want ErrNoSession", err)
	}

	want := domain.Session{
		User:  domain.User{ID: 202, DisplayName: "Jackson", Email: "j@example.com", Role: "employee"},
		Token: "tok-1",
	}
	if err := s.SaveSession(want); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	want.Token = "tok-2"
	if err := s.SaveSession(want); err != nil {
		t.Fatalf("SaveSession replace: %v", err)
	}

	got, err := s.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.User != want.User || got.Token != "tok-2" {
		t.Errorf("LoadSession = %+v, want %+v", got, want)
	}

	if err := s.ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, err := s.LoadSession(); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("LoadSession after clear = %v, want ErrNoSession", err)
	}
}

func TestMarkSeen(t *testing.T) {
	s := newTestStore(t)

	seen, err := s.MarkSeen(1, "2026-02-01", "1:5", "1|5|1")
	if err != nil || seen {
		t.Fatalf("first MarkSeen = %v, %v; want false, nil", seen, err)
	}
	seen, err = s.MarkSeen(1, "2026-02-01", "1:5", `{"siteId":1,"planningId":5}`)
	if err != nil || !seen {
		t.Fatalf("second MarkSeen = %v, %v; want true, nil", seen, err)
	}
	if seen, _ := s.MarkSeen(2, "2026-02-01", "1:5", "1|5|1"); seen {
		t.Errorf("other user should not collide")
	}
	if seen, _ := s.MarkSeen(1, "2026-02-02", "1:5", "1|5|1"); seen {
		t.Errorf("other day should not collide")
	}

	if _, err := s.MarkSeen(1, "2026-02-01", "1:6", "1|6|1"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	entries, err := s.LedgerEntries(1, "2026-02-01")
	if err != nil {
		t.Fatalf("LedgerEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].Payload != "1|5|1" || entries[1].Fingerprint != "1:6" {
		t.Fatalf("LedgerEntries = %+v", entries)
	}
}

func TestForgetAndPrune(t *testing.T) {
	s := newTestStore(t)

	s.MarkSeen(1, "2026-02-01", "1:5", "a")
	s.MarkSeen(1, "2026-02-02", "1:5", "a")
	s.MarkSeen(1, "2026-02-03", "1:5", "a")

	if err := s.Forget(1, "2026-02-03", "1:5"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if seen, _ := s.MarkSeen(1, "2026-02-03", "1:5", "a"); seen {
		t.Errorf("forgotten entry still present")
	}

	n, err := s.PruneLedger("2026-02-03")
	if err != nil {
		t.Fatalf("PruneLedger: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
}
