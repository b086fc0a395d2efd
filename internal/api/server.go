// Package api serves the local kiosk endpoints that feed scans into the
// pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pbaille/timeclock/internal/dedup"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/history"
	"github.com/pbaille/timeclock/internal/logging"
	"github.com/pbaille/timeclock/internal/pipeline"
)

// maxScanBody bounds a POST /scans request
const maxScanBody = 64 * 1024

// LedgerReader lists the codes a user used on a day
type LedgerReader interface {
	LedgerEntries(userID int, day string) ([]domain.LedgerEntry, error)
}

// Server handles HTTP requests for the kiosk API
type Server struct {
	pipeline *pipeline.Pipeline
	history  dedup.HistorySource
	ledger   LedgerReader
	loc      *time.Location
	log      *logging.Logger
	now      func() time.Time
}

// New creates a new API server
func New(p *pipeline.Pipeline, h dedup.HistorySource, ledger LedgerReader, loc *time.Location, log *logging.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{pipeline: p, history: h, ledger: ledger, loc: loc, log: log, now: time.Now}
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/scans", s.postScan).Methods(http.MethodPost)
	r.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/ledger", s.getLedger).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	return withCORS(r)
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Infof("kiosk listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// withCORS adds CORS headers for a browser-based scanner page
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"gate":   s.pipeline.Gate().State().String(),
	})
}

// ScanRequest is the request body for submitting a scan
type ScanRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// ScanResponse reports the outcome of a scan
type ScanResponse struct {
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	EventID   string            `json:"event_id"`
	Intent    *domain.Intent    `json:"intent,omitempty"`
	Timesheet *domain.Timesheet `json:"timesheet,omitempty"`
	DismissMS int64             `json:"dismiss_ms"`
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	switch req.Source {
	case "":
		req.Source = domain.SourceQRScan
	case domain.SourceQRScan, domain.SourceManual:
	default:
		writeError(w, http.StatusBadRequest, "source must be qr_scan or manual")
		return
	}

	out, ok := s.pipeline.Handle(r.Context(), pipeline.NewEvent(req.Text, req.Source))
	if !ok {
		writeError(w, http.StatusTooManyRequests, "scanner busy or repeated read, try again shortly")
		return
	}

	resp := ScanResponse{
		Kind:      out.Kind.String(),
		Message:   out.Message,
		EventID:   out.Event.ID,
		Intent:    out.Intent,
		Timesheet: out.Timesheet,
		DismissMS: out.Dismiss.Milliseconds(),
	}
	writeJSON(w, statusFor(out.Err), resp)
}

// statusFor maps a pipeline error to the kiosk response status
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case domain.IsDecodeError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateToday):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSubmissionFailed), errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	sess := s.pipeline.Session()
	list, err := s.history.History(r.Context(), sess.User.ID, sess.Token)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	history.Sort(list)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":    history.Summarize(list, s.now(), s.loc),
		"timesheets": history.Limit(list, limit),
	})
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = dedup.Day(s.now(), s.loc)
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	entries, err := s.ledger.LedgerEntries(s.pipeline.Session().User.ID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":     day,
		"entries": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
