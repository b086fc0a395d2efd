// Package payload turns raw scanned QR text into attendance intents.
package payload

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pbaille/timeclock/internal/domain"
)

// DefaultMaxAge is how old a generated QR code may be before it is refused
const DefaultMaxAge = 30 * time.Second

var (
	timestampKeys  = []string{"timestamp", "ts", "generatedAt", "generated_at"}
	validUntilKeys = []string{"validUntil", "valid_until"}
)

// Decoder parses scanned payloads
type Decoder struct {
	// MaxAge bounds the age of payloads carrying a generation timestamp.
	// Zero disables the check.
	MaxAge   time.Duration
	Location *time.Location
	Now      func() time.Time
}

// New creates a Decoder reading zone-less timestamps in loc
func New(maxAge time.Duration, loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.Local
	}
	return &Decoder{MaxAge: maxAge, Location: loc, Now: time.Now}
}

// Decode extracts an intent from raw scanned text
func (d *Decoder) Decode(raw string) (domain.Intent, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.Intent{}, fmt.Errorf("%w: empty payload", domain.ErrInvalidFormat)
	}

	f, err := parseObject(text)
	if err != nil {
		in, err := decodeDelimited(text)
		if err != nil {
			return domain.Intent{}, err
		}
		in.Raw = raw
		in.ServiceLabel = domain.ServiceLabel(in.TimesheetTypeID)
		return in, nil
	}

	in, err := d.classify(f)
	if err != nil {
		return domain.Intent{}, err
	}
	if err := d.checkExpiry(f); err != nil {
		return domain.Intent{}, err
	}

	in.Raw = raw
	in.ServiceLabel = serviceLabel(f, in.TimesheetTypeID)
	return in, nil
}

func (d *Decoder) classify(f fields) (domain.Intent, error) {
	for _, s := range shapes {
		if !s.match(f) {
			continue
		}
		in, err := s.extract(f)
		if err != nil {
			return domain.Intent{}, err
		}
		in.Shape = s.name
		return in, nil
	}
	in := fallback(f, d.now())
	in.Shape = "fallback"
	return in, nil
}

// decodeDelimited reads the siteId|planningId|timesheetTypeId form
func decodeDelimited(text string) (domain.Intent, error) {
	parts := strings.Split(text, "|")
	if len(parts) < 3 {
		return domain.Intent{}, fmt.Errorf("%w: expected site|planning|type", domain.ErrInvalidFormat)
	}
	var ids [3]int
	for i := range ids {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return domain.Intent{}, fmt.Errorf("%w: field %d is not a number", domain.ErrInvalidFormat, i+1)
		}
		ids[i] = n
	}
	return domain.Intent{
		SiteID:          ids[0],
		PlanningID:      ids[1],
		TimesheetTypeID: ids[2],
		SiteName:        UnknownName,
		Shape:           "delimited",
	}, nil
}

func (d *Decoder) checkExpiry(f fields) error {
	now := d.now()

	if v, ok := f.get(timestampKeys...); ok && d.MaxAge > 0 {
		if generated, ok := d.parseStamp(v); ok {
			if age := now.Sub(generated); age > d.MaxAge {
				return fmt.Errorf("%w: generated %ds ago", domain.ErrExpired, int(age.Seconds()))
			}
		}
	}

	if v, ok := f.get(validUntilKeys...); ok {
		if until, ok := d.parseStamp(v); ok && now.After(until) {
			return fmt.Errorf("%w: valid until %s", domain.ErrExpired, until.Format(time.RFC3339))
		}
	}
	return nil
}

// parseStamp reads epoch seconds, epoch milliseconds or a textual date
func (d *Decoder) parseStamp(v any) (time.Time, bool) {
	if f, ok := toFloat(v); ok {
		if f > 1e12 {
			return time.UnixMilli(int64(f)), true
		}
		return time.Unix(int64(f), 0), true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, d.loc()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func serviceLabel(f fields, typeID int) string {
	for _, k := range labelKeys {
		s := f.str(k)
		if s == "" {
			continue
		}
		if _, err := strconv.Atoi(s); err == nil {
			continue
		}
		return s
	}
	return domain.ServiceLabel(typeID)
}

func (d *Decoder) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Decoder) loc() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.Local
}
