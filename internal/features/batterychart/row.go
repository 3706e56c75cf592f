package batterychart

// Row formatting for the chart fragment
// A row is one battery reading: a point in time and the remaining battery value
// FormatRow produces the literal placed inside data.addRow([...])
// ParseRow reads the textual "<timestamp>, <number>" form supplied by importers

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidValue is returned when the numeric column of a row is not a finite number.
	ErrInvalidValue = errors.New("invalid battery value")
	// ErrInvalidTime is returned when the time column of a row cannot be parsed.
	ErrInvalidTime = errors.New("invalid row timestamp")
)

// Row is one data point of the chart.
// Value is passed through unchanged; its unit is defined by whoever produces the rows.
type Row struct {
	Time  time.Time
	Value float64
}

// timeLayouts accepted by ParseRow, tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatRow returns the row descriptor literal, e.g. "new Date(1704067200000), 98".
func FormatRow(r Row) (string, error) {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return "", fmt.Errorf("%w: %v at %s", ErrInvalidValue, r.Value, r.Time.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("new Date(%d), %s", r.Time.UnixMilli(), strconv.FormatFloat(r.Value, 'f', -1, 64)), nil
}

// ParseRow parses "<timestamp>, <number>".
// The timestamp may be RFC3339, one of the zone-less layouts above, or unix milliseconds.
func ParseRow(s string) (Row, error) {
	timePart, valuePart, ok := strings.Cut(s, ",")
	if !ok {
		return Row{}, fmt.Errorf("%w: missing value in %q", ErrInvalidValue, s)
	}

	t, err := parseRowTime(strings.TrimSpace(timePart))
	if err != nil {
		return Row{}, err
	}

	valuePart = strings.TrimSpace(valuePart)
	v, err := strconv.ParseFloat(valuePart, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Row{}, fmt.Errorf("%w: %q", ErrInvalidValue, valuePart)
	}

	return Row{Time: t, Value: v}, nil
}

func parseRowTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
