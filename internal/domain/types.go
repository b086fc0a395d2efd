package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Scan sources recorded in submission details
const (
	SourceQRScan = "qr_scan"
	SourceManual = "manual"
)

// ScanEvent is one raw read handed to the pipeline
type ScanEvent struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// Intent is the decoded meaning of a scanned code before it becomes a server record
type Intent struct {
	SiteID          int    `json:"site_id"`
	PlanningID      int    `json:"planning_id"`
	TimesheetTypeID int    `json:"timesheet_type_id"`
	SiteName        string `json:"site_name"`
	EmployeeID      *int   `json:"employee_id,omitempty"`
	ServiceLabel    string `json:"service_label"`
	Shape           string `json:"shape"`
	Raw             string `json:"-"`
	Source          string `json:"source,omitempty"`
}

// Fingerprint identifies logically equivalent scans
func (i Intent) Fingerprint() string {
	return strconv.Itoa(i.SiteID) + ":" + strconv.Itoa(i.PlanningID)
}

// Record is the submission unit sent to the backend
type Record struct {
	UniqueCode      string
	Details         string
	SiteID          int
	PlanningID      int
	TimesheetTypeID int
	EmployeeID      int
	Start           time.Time
}

// User is the authenticated employee
type User struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`
}

// Session pairs the current user with its bearer token
type Session struct {
	User    User      `json:"user"`
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// Timesheet is an attendance record as returned by the backend
type Timesheet struct {
	ID              int       `json:"id"`
	UniqueCode      string    `json:"unique_code"`
	SiteID          int       `json:"site_id"`
	PlanningID      int       `json:"planning_id"`
	TimesheetTypeID int       `json:"timesheet_type_id"`
	Details         string    `json:"details,omitempty"`
	Start           time.Time `json:"start"`
	CreatedAt       time.Time `json:"created_at"`
}

// UnmarshalJSON accepts the snake_case, camelCase and PascalCase
// spellings used by the different backend deployments.
func (t *Timesheet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	lookup := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := raw[k]; ok && string(v) != "null" {
				return v
			}
		}
		return nil
	}

	*t = Timesheet{
		ID:              RawInt(lookup("id", "Id", "ID")),
		UniqueCode:      rawString(lookup("unique_code", "uniqueCode", "code", "Code")),
		SiteID:          RawInt(lookup("site_id", "siteId", "SiteId")),
		PlanningID:      RawInt(lookup("planning_id", "planningId", "PlanningId")),
		TimesheetTypeID: RawInt(lookup("timesheet_type_id", "timesheetTypeId", "TimesheetTypeId")),
		Details:         rawString(lookup("details", "Details")),
		Start:           rawTime(lookup("start", "Start")),
		CreatedAt:       rawTime(lookup("created_at", "createdAt", "CreatedAt")),
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.Start
	}
	return nil
}

// Method reports how the record was captured, read from its details blob
func (t Timesheet) Method() string {
	var d struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal([]byte(t.Details), &d); err != nil {
		return ""
	}
	return d.Method
}

// RawInt reads a JSON number or numeric string, returning 0 otherwise
func RawInt(v json.RawMessage) int {
	if v == nil {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

func rawString(v json.RawMessage) string {
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// details sometimes arrive as an object rather than an encoded string
	return string(v)
}

// timeLayouts covers RFC 3339 and the zone-less timestamps the backend emits
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func rawTime(v json.RawMessage) time.Time {
	s := rawString(v)
	if s == "" {
		return time.Time{}
	}
	t, _ := ParseTime(s)
	return t
}

// ParseTime parses a backend timestamp; zone-less values are read as UTC
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LedgerEntry is one code recorded as used by a user on a given day
type LedgerEntry struct {
	ID          string    `json:"id"`
	UserID      int       `json:"user_id"`
	Day         string    `json:"day"`
	Fingerprint string    `json:"fingerprint"`
	Payload     string    `json:"payload"`
	SeenAt      time.Time `json:"seen_at"`
}
