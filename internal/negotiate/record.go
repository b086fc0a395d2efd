package negotiate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pbaille/timeclock/internal/domain"
)

// LegacyDetailsLimit is the longest details blob legacy endpoints accept
const LegacyDetailsLimit = 250

// DeviceName identifies this client in submission details
const DeviceName = "timeclock-cli"

// NewCode returns a fresh unique code. ulid.Make is monotonic within the
// process, so codes created in the same millisecond still sort and differ.
func NewCode() string {
	return "TC-" + ulid.Make().String()
}

type details struct {
	UserID     int    `json:"uid"`
	UserName   string `json:"un"`
	PlanningID int    `json:"pid"`
	SiteID     int    `json:"sid"`
	TypeID     int    `json:"tt"`
	SiteName   string `json:"site,omitempty"`
	Service    string `json:"service,omitempty"`
	Timestamp  int64  `json:"ts"`
	Device     string `json:"device"`
	Method     string `json:"method"`
}

// BuildRecord turns an intent into the record sent to the backend. The
// employee is the one named by the code, else the session user.
func BuildRecord(in domain.Intent, sess domain.Session, code string, now time.Time) (domain.Record, error) {
	employee := sess.User.ID
	if in.EmployeeID != nil {
		employee = *in.EmployeeID
	}
	method := in.Source
	if method == "" {
		method = domain.SourceQRScan
	}

	blob, err := json.Marshal(details{
		UserID:     sess.User.ID,
		UserName:   sess.User.DisplayName,
		PlanningID: in.PlanningID,
		SiteID:     in.SiteID,
		TypeID:     in.TimesheetTypeID,
		SiteName:   in.SiteName,
		Service:    in.ServiceLabel,
		Timestamp:  now.UnixMilli(),
		Device:     DeviceName,
		Method:     method,
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("marshal details: %w", err)
	}

	return domain.Record{
		UniqueCode:      code,
		Details:         string(blob),
		SiteID:          in.SiteID,
		PlanningID:      in.PlanningID,
		TimesheetTypeID: in.TimesheetTypeID,
		EmployeeID:      employee,
		Start:           now.UTC(),
	}, nil
}

type modernBody struct {
	SiteID          int    `json:"site_id"`
	PlanningID      int    `json:"planning_id"`
	TimesheetTypeID int    `json:"timesheet_type_id"`
	UniqueCode      string `json:"unique_code"`
	Details         string `json:"details"`
}

type legacyBody struct {
	EmployeeID      int    `json:"EmployeeId"`
	SiteID          int    `json:"SiteId"`
	PlanningID      int    `json:"PlanningId"`
	TimesheetTypeID int    `json:"TimesheetTypeId"`
	Start           string `json:"Start"`
	Code            string `json:"Code"`
	Details         string `json:"Details"`
}

// encode renders rec for one attempt and returns the body with its content type
func encode(rec domain.Record, a Attempt) ([]byte, string, error) {
	start := rec.Start.Format(time.RFC3339)
	var form url.Values
	var body any

	switch a.Shape {
	case ShapeLegacy:
		lb := legacyBody{
			EmployeeID:      rec.EmployeeID,
			SiteID:          rec.SiteID,
			PlanningID:      rec.PlanningID,
			TimesheetTypeID: rec.TimesheetTypeID,
			Start:           start,
			Code:            rec.UniqueCode,
			Details:         truncateRunes(rec.Details, LegacyDetailsLimit),
		}
		body = lb
		form = url.Values{
			"EmployeeId":      {strconv.Itoa(lb.EmployeeID)},
			"SiteId":          {strconv.Itoa(lb.SiteID)},
			"PlanningId":      {strconv.Itoa(lb.PlanningID)},
			"TimesheetTypeId": {strconv.Itoa(lb.TimesheetTypeID)},
			"Start":           {lb.Start},
			"Code":            {lb.Code},
			"Details":         {lb.Details},
		}
	default:
		mb := modernBody{
			SiteID:          rec.SiteID,
			PlanningID:      rec.PlanningID,
			TimesheetTypeID: rec.TimesheetTypeID,
			UniqueCode:      rec.UniqueCode,
			Details:         rec.Details,
		}
		body = mb
		form = url.Values{
			"site_id":           {strconv.Itoa(mb.SiteID)},
			"planning_id":       {strconv.Itoa(mb.PlanningID)},
			"timesheet_type_id": {strconv.Itoa(mb.TimesheetTypeID)},
			"unique_code":       {mb.UniqueCode},
			"details":           {mb.Details},
		}
	}

	if a.Encoding == EncodingForm {
		return []byte(form.Encode()), a.Encoding.ContentType(), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal %s body: %w", a.Shape, err)
	}
	return data, a.Encoding.ContentType(), nil
}

// truncateRunes cuts s to at most max characters without splitting a rune
func truncateRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
