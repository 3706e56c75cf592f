package readings

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsWireFormat(t *testing.T) {
	rs := []Reading{{DeviceID: "dev", Time: t0, RSSI: -71, BatteryLevel: 98}}

	data, err := json.Marshal(ToPoints(rs))
	require.NoError(t, err)
	assert.JSONEq(t, `[[1704067200000,-71,98]]`, string(data))

	var points []Point
	require.NoError(t, json.Unmarshal(data, &points))
	back := FromPoints("dev", points)
	require.Len(t, back, 1)
	assert.True(t, back[0].Time.Equal(t0))
	assert.Equal(t, 98, back[0].BatteryLevel)
	assert.Equal(t, -71, back[0].RSSI)
}

func TestParseMicros(t *testing.T) {
	got, err := ParseMicros("1704067200000000")
	require.NoError(t, err)
	assert.True(t, got.Equal(t0))
	assert.Equal(t, "1704067200000000", Micros(got))

	got, err = ParseMicros("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.Equal(t, "", Micros(time.Time{}))

	_, err = ParseMicros("yesterday")
	assert.Error(t, err)
	_, err = ParseMicros("-5")
	assert.Error(t, err)
}
