// Package history orders and summarizes a user's attendance records.
package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pbaille/timeclock/internal/dedup"
	"github.com/pbaille/timeclock/internal/domain"
)

// Summary counts records over the usual display windows
type Summary struct {
	Total    int `json:"total"`
	Today    int `json:"today"`
	ThisWeek int `json:"this_week"`
}

// Sort orders records newest first
func Sort(list []domain.Timesheet) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// WeekStart returns the most recent Sunday midnight at or before now in loc
func WeekStart(now time.Time, loc *time.Location) time.Time {
	start, _ := dedup.DayBounds(now, loc)
	return start.AddDate(0, 0, -int(start.Weekday()))
}

// Summarize counts all records, today's and this week's, with days taken in loc
func Summarize(list []domain.Timesheet, now time.Time, loc *time.Location) Summary {
	today, tomorrow := dedup.DayBounds(now, loc)
	week := WeekStart(now, loc)

	s := Summary{Total: len(list)}
	for _, t := range list {
		if !t.CreatedAt.Before(today) && t.CreatedAt.Before(tomorrow) {
			s.Today++
		}
		if !t.CreatedAt.Before(week) {
			s.ThisWeek++
		}
	}
	return s
}

// Limit returns at most n records; n <= 0 means all
func Limit(list []domain.Timesheet, n int) []domain.Timesheet {
	if n <= 0 || n >= len(list) {
		return list
	}
	return list[:n]
}

var csvHeader = []string{"id", "created_at", "site_id", "planning_id", "timesheet_type_id", "service", "unique_code", "method"}

// WriteCSV exports records with timestamps rendered in loc
func WriteCSV(w io.Writer, list []domain.Timesheet, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, t := range list {
		row := []string{
			strconv.Itoa(t.ID),
			t.CreatedAt.In(loc).Format(time.RFC3339),
			strconv.Itoa(t.SiteID),
			strconv.Itoa(t.PlanningID),
			strconv.Itoa(t.TimesheetTypeID),
			domain.ServiceLabel(t.TimesheetTypeID),
			t.UniqueCode,
			t.Method(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
