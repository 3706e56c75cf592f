package readings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Point is the wire form of one reading in the timeseries endpoint:
// [unix milliseconds, rssi, battery level].
type Point [3]int64

func ToPoints(rs []Reading) []Point {
	points := make([]Point, len(rs))
	for i, r := range rs {
		points[i] = Point{r.Time.UnixMilli(), int64(r.RSSI), int64(r.BatteryLevel)}
	}
	return points
}

func FromPoints(deviceID string, points []Point) []Reading {
	rs := make([]Reading, len(points))
	for i, p := range points {
		rs[i] = Reading{
			DeviceID:     deviceID,
			Time:         time.UnixMilli(p[0]).UTC(),
			RSSI:         int(p[1]),
			BatteryLevel: int(p[2]),
		}
	}
	return rs
}

// ParseMicros parses a time given in microseconds since the epoch. Empty input gives the zero time.
func ParseMicros(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil || us < 0 {
		return time.Time{}, fmt.Errorf("%w: invalid microseconds timestamp %q", ErrInvalidWindow, s)
	}
	return time.UnixMicro(us).UTC(), nil
}

// Micros formats t as microseconds since the epoch, "" for the zero time.
func Micros(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}
