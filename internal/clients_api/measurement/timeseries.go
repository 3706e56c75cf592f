package measurement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"battery-chart/internal/readings"
)

// TimeseriesEndpoint serves [[unix_ms, rssi, battery], ...] for a device.
const TimeseriesEndpoint = "/timeseries/data"

// FetchTimeseries downloads the readings of f.DeviceID in [f.Start, f.End].
// Zero Start/End/Limit are left to the upstream defaults.
func (c *Client) FetchTimeseries(ctx context.Context, f readings.Filter) ([]readings.Reading, error) {
	if err := readings.ValidateDeviceID(f.DeviceID); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("device_id", f.DeviceID)
	if s := readings.Micros(f.Start); s != "" {
		params.Set("start_time", s)
	}
	if s := readings.Micros(f.End); s != "" {
		params.Set("end_time", s)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}

	respBody, err := c.MakeRequest(ctx, TimeseriesEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeseries for %s: %w", f.DeviceID, err)
	}

	var points []readings.Point
	if err := json.Unmarshal(respBody, &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timeseries response: %w", err)
	}

	rs := readings.FromPoints(f.DeviceID, points)
	readings.SortByTime(rs)
	return rs, nil
}
