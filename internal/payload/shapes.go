package payload

import (
	"fmt"
	"time"

	"github.com/pbaille/timeclock/internal/domain"
)

// Placeholder site names
const (
	MainSiteName    = "Main Site"
	UnknownSiteName = "unknown site"
	UnknownName     = "unknown"
)

var (
	userIDKeys     = []string{"userId", "user_id", "UserId"}
	userNameKeys   = []string{"userName", "user_name", "UserName"}
	planningKeys   = []string{"planningId", "planning_id", "PlanningId"}
	siteKeys       = []string{"siteId", "site_id", "SiteId"}
	typeKeys       = []string{"timesheetTypeId", "timeSheetTypeId", "timesheet_type_id", "TimesheetTypeId"}
	siteNameKeys   = []string{"siteName", "site_name", "SiteName"}
	employeeKeys   = []string{"employeeId", "employee_id", "EmployeeId"}
	fallbackIDKeys = []string{"planningId", "pid", "planning_id", "id"}
	labelKeys      = []string{"serviceLabel", "label", "action", "type"}
)

// shape is one known payload layout: a predicate on key presence and the
// extractor that builds an intent from it.
type shape struct {
	name    string
	match   func(fields) bool
	extract func(fields) (domain.Intent, error)
}

// shapes is evaluated in order; the first match wins. Adding a payload
// layout means adding an entry here.
var shapes = []shape{
	{
		name: "user",
		match: func(f fields) bool {
			return f.has(userIDKeys...) && f.has(userNameKeys...) && f.has(planningKeys...)
		},
		extract: func(f fields) (domain.Intent, error) {
			planning, err := required(f, "planningId", planningKeys)
			if err != nil {
				return domain.Intent{}, err
			}
			user, err := required(f, "userId", userIDKeys)
			if err != nil {
				return domain.Intent{}, err
			}
			typeID, err := optional(f, "timesheetTypeId", typeKeys, 1)
			if err != nil {
				return domain.Intent{}, err
			}
			return domain.Intent{
				SiteID:          1,
				PlanningID:      planning,
				TimesheetTypeID: typeID,
				SiteName:        MainSiteName,
				EmployeeID:      &user,
			}, nil
		},
	},
	{
		name: "site",
		match: func(f fields) bool {
			return f.has(siteKeys...) && f.has(planningKeys...) && f.has(typeKeys...)
		},
		extract: func(f fields) (domain.Intent, error) {
			return siteIntent(f, true)
		},
	},
	{
		name: "site-short",
		match: func(f fields) bool {
			return f.has(siteKeys...) && f.has(planningKeys...)
		},
		extract: func(f fields) (domain.Intent, error) {
			return siteIntent(f, false)
		},
	},
	{
		name: "shortcut",
		match: func(f fields) bool {
			return f.has("uid") && f.has("pid")
		},
		extract: func(f fields) (domain.Intent, error) {
			planning, err := required(f, "pid", []string{"pid"})
			if err != nil {
				return domain.Intent{}, err
			}
			user, err := required(f, "uid", []string{"uid"})
			if err != nil {
				return domain.Intent{}, err
			}
			return domain.Intent{
				SiteID:          1,
				PlanningID:      planning,
				TimesheetTypeID: 1,
				SiteName:        UnknownName,
				EmployeeID:      &user,
			}, nil
		},
	},
}

func siteIntent(f fields, typed bool) (domain.Intent, error) {
	site, err := required(f, "siteId", siteKeys)
	if err != nil {
		return domain.Intent{}, err
	}
	planning, err := required(f, "planningId", planningKeys)
	if err != nil {
		return domain.Intent{}, err
	}
	typeID := 1
	if typed {
		if typeID, err = required(f, "timesheetTypeId", typeKeys); err != nil {
			return domain.Intent{}, err
		}
	}
	in := domain.Intent{
		SiteID:          site,
		PlanningID:      planning,
		TimesheetTypeID: typeID,
		SiteName:        UnknownSiteName,
	}
	if name := f.str(siteNameKeys...); name != "" {
		in.SiteName = name
	}
	if emp, present, ok := f.int(employeeKeys...); present {
		if !ok {
			return domain.Intent{}, fmt.Errorf("%w: employeeId is not an integer", domain.ErrInvalidFormat)
		}
		in.EmployeeID = &emp
	}
	return in, nil
}

// fallback guesses a planning id from an unrecognized object: a positive
// known alias first, then the first integer in (0, 1000), then the clock
// (1..1000, never 0).
func fallback(f fields, now time.Time) domain.Intent {
	in := domain.Intent{
		SiteID:          1,
		TimesheetTypeID: 1,
		SiteName:        UnknownName,
	}

	for _, k := range fallbackIDKeys {
		if n, present, ok := f.int(k); present && ok && n > 0 {
			in.PlanningID = n
			return in
		}
	}

	for _, fd := range f {
		if n, ok := toInt(fd.value); ok && n > 0 && n < 1000 {
			in.PlanningID = n
			return in
		}
	}

	in.PlanningID = int(now.UnixMilli() % 1000)
	if in.PlanningID == 0 {
		in.PlanningID = 1000
	}
	return in
}

func required(f fields, name string, keys []string) (int, error) {
	n, present, ok := f.int(keys...)
	if !present {
		return 0, fmt.Errorf("%w: missing %s", domain.ErrInvalidFormat, name)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an integer", domain.ErrInvalidFormat, name)
	}
	return n, nil
}

func optional(f fields, name string, keys []string, def int) (int, error) {
	if !f.has(keys...) {
		return def, nil
	}
	return required(f, name, keys)
}
