package negotiate

import (
	"fmt"
	"strings"
)

// Shape is the field layout of a submission body
type Shape string

const (
	// ShapeModern uses snake_case keys and a full details blob
	ShapeModern Shape = "modern"
	// ShapeLegacy uses PascalCase keys and a details blob of at most 250 characters
	ShapeLegacy Shape = "legacy"
)

// Encoding is how a body is serialized on the wire
type Encoding string

const (
	EncodingJSON        Encoding = "json"
	EncodingJSONCharset Encoding = "json-charset"
	EncodingTextJSON    Encoding = "text-json"
	EncodingForm        Encoding = "form"
)

// ContentType returns the request header value for the encoding
func (e Encoding) ContentType() string {
	switch e {
	case EncodingJSONCharset:
		return "application/json; charset=utf-8"
	case EncodingTextJSON:
		return "text/json"
	case EncodingForm:
		return "application/x-www-form-urlencoded"
	default:
		return "application/json"
	}
}

// Attempt is one (endpoint, shape, encoding) combination to try
type Attempt struct {
	Path     string
	Shape    Shape
	Encoding Encoding
}

func (a Attempt) String() string {
	return a.Path + ":" + string(a.Shape) + ":" + string(a.Encoding)
}

// DefaultAttempts is the order used when none is configured
var DefaultAttempts = []Attempt{
	{"/timesheets", ShapeModern, EncodingJSON},
	{"/timesheets", ShapeModern, EncodingJSONCharset},
	{"/Timesheet", ShapeLegacy, EncodingJSON},
	{"/Timesheet", ShapeLegacy, EncodingJSONCharset},
	{"/Timesheet", ShapeLegacy, EncodingTextJSON},
	{"/Timesheet", ShapeLegacy, EncodingForm},
	{"/timesheet", ShapeModern, EncodingJSON},
	{"/Timesheets", ShapeLegacy, EncodingJSON},
	{"/timesheets", ShapeModern, EncodingForm},
}

// ParseAttempts reads a comma separated list of path:shape:encoding
// entries, e.g. "/timesheets:modern:json,/Timesheet:legacy:form".
// An empty string yields DefaultAttempts.
func ParseAttempts(s string) ([]Attempt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]Attempt(nil), DefaultAttempts...), nil
	}

	var out []Attempt
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("parse attempt %q: want path:shape:encoding", item)
		}

		a := Attempt{
			Path:     strings.TrimSpace(parts[0]),
			Shape:    Shape(strings.TrimSpace(parts[1])),
			Encoding: Encoding(strings.TrimSpace(parts[2])),
		}
		if !strings.HasPrefix(a.Path, "/") {
			a.Path = "/" + a.Path
		}
		switch a.Shape {
		case ShapeModern, ShapeLegacy:
		default:
			return nil, fmt.Errorf("parse attempt %q: unknown shape %q", item, a.Shape)
		}
		switch a.Encoding {
		case EncodingJSON, EncodingJSONCharset, EncodingTextJSON, EncodingForm:
		default:
			return nil, fmt.Errorf("parse attempt %q: unknown encoding %q", item, a.Encoding)
		}
		out = append(out, a)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("parse attempts: no entries in %q", s)
	}
	return out, nil
}
