package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"battery-chart/internal/features/batterychart"
	storage "battery-chart/internal/infra/fs"
	"battery-chart/internal/readings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, settings Settings) (*Server, *storage.ReadingsStore) {
	t.Helper()
	store, err := storage.NewReadingsStore(t.TempDir())
	require.NoError(t, err)

	s := New(store, batterychart.NewRenderer(batterychart.DefaultOptions()), settings)
	s.now = func() time.Time { return now }
	return s, store
}

func seed(t *testing.T, store *storage.ReadingsStore, deviceID string, levels ...int) {
	t.Helper()
	rs := make([]readings.Reading, len(levels))
	for i, level := range levels {
		rs[i] = readings.Reading{
			DeviceID:     deviceID,
			Time:         now.Add(-time.Duration(len(levels)-i) * time.Hour),
			BatteryLevel: level,
			RSSI:         -60,
		}
	}
	require.NoError(t, store.Append(context.Background(), rs...))
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBatteryFragment(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 80, 75, 70)

	rec := get(t, s, "/battery/fragment?device_id=phone-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, "data.addRow(["))
	assert.Contains(t, body, "new Date("+itoa(now.Add(-3*time.Hour).UnixMilli())+"), 80")
	assert.Contains(t, body, "new Date("+itoa(now.Add(-1*time.Hour).UnixMilli())+"), 70")
	assert.Less(t, strings.Index(body, ", 80]"), strings.Index(body, ", 70]"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBatteryFragment_ThinningAndLimit(t *testing.T) {
	s, store := newTestServer(t, Settings{MinInterval: 2 * time.Hour, PointLimit: 2})
	seed(t, store, "phone-1", 90, 89, 88, 87, 86, 85, 84)

	rec := get(t, s, "/battery/fragment?device_id=phone-1")
	require.Equal(t, http.StatusOK, rec.Code)

	// hourly readings thinned to every other one (90, 88, 86, 84), newest two kept
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "data.addRow(["))
	assert.Contains(t, body, ", 86]")
	assert.Contains(t, body, ", 84]")
	assert.NotContains(t, body, ", 85]")
}

func TestBatteryPage(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 50)

	rec := get(t, s, "/battery?device_id=phone-1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, `id="battery_chart_div"`)
	assert.Contains(t, body, "phone-1")
	assert.Equal(t, 1, strings.Count(body, "data.addRow(["))
}

func TestBatteryPage_Errors(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 50)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing device", "/battery", http.StatusBadRequest},
		{"bad device", "/battery?device_id=../etc", http.StatusBadRequest},
		{"bad start", "/battery?device_id=phone-1&start_time=yesterday", http.StatusBadRequest},
		{"inverted window", "/battery?device_id=phone-1&start_time=2000&end_time=1000", http.StatusBadRequest},
		{"bad limit", "/battery?device_id=phone-1&limit=-1", http.StatusBadRequest},
		{"unknown device", "/battery?device_id=ghost", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, get(t, s, tt.target).Code)
		})
	}
}

func TestBatteryPNG(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 80, 60, 40)

	rec := get(t, s, "/battery/chart.png?device_id=phone-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestBatteryPNG_NoDataInWindow(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 80)

	end := readings.Micros(now.Add(-48 * time.Hour))
	rec := get(t, s, "/battery/chart.png?device_id=phone-1&end_time="+end)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimeseriesData(t *testing.T) {
	s, store := newTestServer(t, Settings{MinInterval: 24 * time.Hour})
	seed(t, store, "phone-1", 80, 79, 78)

	start := readings.Micros(now.Add(-150 * time.Minute))
	rec := get(t, s, "/timeseries/data?device_id=phone-1&start_time="+start)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var points []readings.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	// raw data, no thinning
	require.Len(t, points, 2)
	assert.Equal(t, readings.Point{now.Add(-2 * time.Hour).UnixMilli(), -60, 79}, points[0])
	assert.Equal(t, readings.Point{now.Add(-1 * time.Hour).UnixMilli(), -60, 78}, points[1])
}

func TestIngest(t *testing.T) {
	s, store := newTestServer(t, Settings{})

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"device_id":"phone-1","battery_level":42,"is_battery_charging":true,"rssi":-70}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"stored":1}`, rec.Body.String())

	rec = post(`[
		{"device_id":"phone-1","timestamp":"2024-05-06T09:00:00Z","battery_level":50},
		{"device_id":"phone-2","timestamp":"2024-05-06T10:00:00Z","battery_level":20}
	]`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"stored":2}`, rec.Body.String())

	latest, err := store.Latest(context.Background(), "phone-1")
	require.NoError(t, err)
	assert.Equal(t, 42, latest.BatteryLevel)
	assert.True(t, latest.Charging)
	assert.True(t, latest.Time.Equal(now))

	devices, err := store.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"phone-1", "phone-2"}, devices)

	assert.Equal(t, http.StatusBadRequest, post(`{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`[]`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"device_id":"a/b","battery_level":1}`).Code)
}

func TestDevices(t *testing.T) {
	s, store := newTestServer(t, Settings{})

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No devices have reported yet.")

	seed(t, store, "phone-1", 33)
	rec = get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/battery?device_id=phone-1"`)
	assert.Contains(t, rec.Body.String(), "<td>33</td>")
}

func TestHealthzAndMetrics(t *testing.T) {
	s, store := newTestServer(t, Settings{})
	seed(t, store, "phone-1", 33)

	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	get(t, s, "/battery/fragment?device_id=phone-1")
	get(t, s, "/no/such/route")

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	metrics := string(body)
	assert.Contains(t, metrics, `battery_chart_renders_total{kind="fragment"} 1`)
	assert.Contains(t, metrics, `battery_chart_http_requests_total{code="200",method="GET",route="/battery/fragment"} 1`)
	assert.Contains(t, metrics, `route="unmatched"`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(readings.ErrInvalidWindow))
	assert.Equal(t, http.StatusBadRequest, statusFor(batterychart.ErrInvalidValue))
	assert.Equal(t, http.StatusNotFound, statusFor(storage.ErrDeviceNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
