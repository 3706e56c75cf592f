package batterychart

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRow(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"integer", 98, "new Date(1704067200000), 98"},
		{"fraction", 97.25, "new Date(1704067200000), 97.25"},
		{"zero", 0, "new Date(1704067200000), 0"},
		{"raw capacity", 3120, "new Date(1704067200000), 3120"},
		{"negative", -1, "new Date(1704067200000), -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatRow(Row{Time: ts, Value: tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRow_NonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FormatRow(Row{Time: time.Unix(0, 0), Value: v})
		assert.True(t, errors.Is(err, ErrInvalidValue), "value %v", v)
	}
}

func TestFormatRow_ZoneIndependent(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	utc := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)

	a, err := FormatRow(Row{Time: utc, Value: 1})
	require.NoError(t, err)
	b, err := FormatRow(Row{Time: utc.In(loc), Value: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		in       string
		wantTime time.Time
		wantVal  float64
	}{
		{"2024-01-01T00:00:00, 98", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 98},
		{"2024-01-01T01:00:00Z,95", time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), 95},
		{"2024-01-01 02:30:00 , 91.5", time.Date(2024, 1, 1, 2, 30, 0, 0, time.UTC), 91.5},
		{"1704067200000, 40", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 40},
		{"2024-01-02, 7", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRow(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.wantTime.Equal(r.Time), "got %s", r.Time)
			assert.Equal(t, tt.wantVal, r.Value)
		})
	}
}

func TestParseRow_Errors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"2024-01-01T00:00:00, full", ErrInvalidValue},
		{"2024-01-01T00:00:00, ", ErrInvalidValue},
		{"2024-01-01T00:00:00, NaN", ErrInvalidValue},
		{"2024-01-01T00:00:00, +Inf", ErrInvalidValue},
		{"2024-01-01T00:00:00", ErrInvalidValue},
		{"yesterday, 50", ErrInvalidTime},
		{", 50", ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseRow(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	r, err := ParseRow("2024-05-06T07:08:09, 64")
	require.NoError(t, err)
	lit, err := FormatRow(r)
	require.NoError(t, err)
	assert.Equal(t, "new Date(1714979289000), 64", lit)
}
