package readings

// Battery readings reported by devices on checkin
// Filter describes a time window query, Thin drops readings that are closer
// together than the configured interval, ToRows converts to chart rows

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"battery-chart/internal/features/batterychart"
)

const (
	// DefaultPointLimit - number of points returned when a query has no limit
	DefaultPointLimit = 100
	// DefaultMinInterval - minimal gap between two adjacent readings on the chart
	DefaultMinInterval = 2 * time.Hour
	// DefaultMaxQueryInterval - widest time window a single query may cover
	DefaultMaxQueryInterval = 31 * 24 * time.Hour
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

var (
	ErrInvalidDeviceID = errors.New("invalid device id")
	ErrInvalidWindow   = errors.New("invalid time window")
	ErrInvalidReading  = errors.New("invalid reading")
)

// Reading is one device property snapshot.
// BatteryLevel is stored as reported; its unit belongs to the reporting device.
type Reading struct {
	DeviceID     string    `json:"device_id"`
	Time         time.Time `json:"timestamp"`
	BatteryLevel int       `json:"battery_level"`
	Charging     bool      `json:"is_battery_charging"`
	RSSI         int       `json:"rssi"`
}

// ValidateDeviceID checks that id is safe to use as a file name.
func ValidateDeviceID(id string) error {
	if !deviceIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	return nil
}

func (r Reading) Validate() error {
	if err := ValidateDeviceID(r.DeviceID); err != nil {
		return err
	}
	if r.Time.IsZero() {
		return fmt.Errorf("%w: %s has no timestamp", ErrInvalidReading, r.DeviceID)
	}
	return nil
}

// Filter selects readings of one device in [Start, End].
type Filter struct {
	DeviceID string
	Start    time.Time
	End      time.Time
	Limit    int
}

// Normalize fills the open ends of the window and clamps it to maxSpan.
// A missing End means now, a missing Start means End-maxSpan. When the window
// is wider than maxSpan the Start is moved forward.
func (f Filter) Normalize(now time.Time, maxSpan time.Duration, defaultLimit int) (Filter, error) {
	if err := ValidateDeviceID(f.DeviceID); err != nil {
		return f, err
	}
	if f.End.IsZero() {
		f.End = now
	}
	if f.Start.IsZero() {
		f.Start = f.End.Add(-maxSpan)
	}
	if f.Start.After(f.End) {
		return f, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, f.Start.Format(time.RFC3339), f.End.Format(time.RFC3339))
	}
	if maxSpan > 0 && f.End.Sub(f.Start) > maxSpan {
		f.Start = f.End.Add(-maxSpan)
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	return f, nil
}

// Match reports whether r falls into the filter window.
func (f Filter) Match(r Reading) bool {
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	if !f.Start.IsZero() && r.Time.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && r.Time.After(f.End) {
		return false
	}
	return true
}

// SortByTime sorts in place, oldest first. Equal times keep their order.
func SortByTime(rs []Reading) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Time.Before(rs[j].Time) })
}

// Thin keeps the first reading and then every reading at least minInterval
// after the previously kept one. rs must be sorted by time.
func Thin(rs []Reading, minInterval time.Duration) []Reading {
	if minInterval <= 0 || len(rs) == 0 {
		return rs
	}
	out := make([]Reading, 0, len(rs))
	out = append(out, rs[0])
	last := rs[0].Time
	for _, r := range rs[1:] {
		if r.Time.Sub(last) >= minInterval {
			out = append(out, r)
			last = r.Time
		}
	}
	return out
}

// ToRows converts readings to chart rows, preserving order.
func ToRows(rs []Reading) []batterychart.Row {
	rows := make([]batterychart.Row, len(rs))
	for i, r := range rs {
		rows[i] = batterychart.Row{Time: r.Time, Value: float64(r.BatteryLevel)}
	}
	return rows
}

// Querier is implemented by readings storage.
type Querier interface {
	Query(ctx context.Context, f Filter) ([]Reading, error)
}

// Series loads the chart series for f: every reading in the window, thinned
// to minInterval, then the newest f.Limit points. f should be normalized.
func Series(ctx context.Context, q Querier, f Filter, minInterval time.Duration) ([]Reading, error) {
	limit := f.Limit
	f.Limit = 0
	rs, err := q.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	rs = Thin(rs, minInterval)
	if limit > 0 && len(rs) > limit {
		rs = rs[len(rs)-limit:]
	}
	return rs, nil
}
