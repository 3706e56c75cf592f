package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/features/tg_charts"
	storage "battery-chart/internal/infra/fs"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"go.uber.org/zap"
)

const maxIngestBody = 1 << 20

var errBadRequest = errors.New("bad request")

// Device list page

const tmplDevices = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Battery charts</title>
<style>
body{font-family:sans-serif;margin:0;background:#fafafa;color:#202124}
main{padding:16px}
table{border-collapse:collapse;font-size:14px}
th,td{text-align:left;padding:6px 12px;border-bottom:1px solid #dadce0}
.dim{color:#5f6368}
</style>
</head>
<body>
<main>
<h1>Devices</h1>
{{if .}}<table>
<tr><th>Device</th><th>Latest</th><th>Seen</th><th></th></tr>
{{range .}}<tr>
<td><a href="/battery?device_id={{.DeviceID}}">{{.DeviceID}}</a></td>
<td>{{.BatteryLevel}}{{if .Charging}} <span class="dim">charging</span>{{end}}</td>
<td class="dim">{{.Time.UTC.Format "2006-01-02 15:04"}} UTC</td>
<td><a href="/battery/chart.png?device_id={{.DeviceID}}">png</a></td>
</tr>
{{end}}</table>{{else}}<p class="dim">No devices have reported yet.</p>{{end}}
</main>
</body>
</html>`

var devicesTemplate = template.Must(template.New("devices").Parse(tmplDevices))

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	devices, err := s.store.Devices(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	latest := make([]readings.Reading, 0, len(devices))
	for _, id := range devices {
		reading, err := s.store.Latest(ctx, id)
		if err != nil {
			log.LogWarn("Skipping device without readings", zap.String("device_id", id), zap.Error(err))
			continue
		}
		latest = append(latest, reading)
	}

	var buf bytes.Buffer
	if err := devicesTemplate.Execute(&buf, latest); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to render device list: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// Chart handlers

// filterFromRequest reads device_id, start_time, end_time (µs since epoch) and limit.
func (s *Server) filterFromRequest(r *http.Request) (readings.Filter, error) {
	q := r.URL.Query()

	deviceID := q.Get("device_id")
	if deviceID == "" {
		return readings.Filter{}, fmt.Errorf("%w: device_id is required", errBadRequest)
	}
	start, err := readings.ParseMicros(q.Get("start_time"))
	if err != nil {
		return readings.Filter{}, err
	}
	end, err := readings.ParseMicros(q.Get("end_time"))
	if err != nil {
		return readings.Filter{}, err
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return readings.Filter{}, fmt.Errorf("%w: invalid limit %q", errBadRequest, v)
		}
	}

	f := readings.Filter{DeviceID: deviceID, Start: start, End: end, Limit: limit}
	return f.Normalize(s.now(), s.settings.MaxQueryInterval, s.settings.PointLimit)
}

// series loads the thinned chart series for the request.
func (s *Server) series(r *http.Request) (readings.Filter, []readings.Reading, error) {
	f, err := s.filterFromRequest(r)
	if err != nil {
		return f, nil, err
	}
	rs, err := readings.Series(r.Context(), s.store, f, s.settings.MinInterval)
	return f, rs, err
}

func (s *Server) handleBatteryPage(w http.ResponseWriter, r *http.Request) {
	f, rs, err := s.series(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = s.renderer.RenderPage(&buf, batterychart.PageData{
		Title:    "Battery level",
		DeviceID: f.DeviceID,
		Rows:     readings.ToRows(rs),
	})
	s.metrics.observeRender("page", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleBatteryFragment(w http.ResponseWriter, r *http.Request) {
	_, rs, err := s.series(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = s.renderer.Render(&buf, readings.ToRows(rs))
	s.metrics.observeRender("fragment", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleBatteryPNG(w http.ResponseWriter, r *http.Request) {
	f, rs, err := s.series(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := s.settings.Image
	if opts.Title == "" {
		opts.Title = "Battery · " + f.DeviceID
	}

	var buf bytes.Buffer
	err = tg_charts.RenderBatteryChart(&buf, readings.ToRows(rs), opts)
	s.metrics.observeRender("png", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes())
}

// handleTimeseriesData returns the raw (unthinned) readings of the window.
func (s *Server) handleTimeseriesData(w http.ResponseWriter, r *http.Request) {
	f, err := s.filterFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := s.store.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings.ToPoints(rs))
}

// Checkin ingest

// handleIngest accepts one reading object or an array of them.
// A reading without timestamp is stamped with the server time.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var rs []readings.Reading
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rs)
	} else {
		var one readings.Reading
		err = json.Unmarshal(trimmed, &one)
		rs = []readings.Reading{one}
	}
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err))
		return
	}
	if len(rs) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: no readings", errBadRequest))
		return
	}

	now := s.now().UTC()
	for i := range rs {
		if rs[i].Time.IsZero() {
			rs[i].Time = now
		}
	}

	if err := s.store.Append(r.Context(), rs...); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.ingested.Add(float64(len(rs)))
	for _, reading := range rs {
		s.metrics.lastLevel.WithLabelValues(reading.DeviceID).Set(float64(reading.BatteryLevel))
	}
	writeJSON(w, http.StatusCreated, map[string]int{"stored": len(rs)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, readings.ErrInvalidDeviceID),
		errors.Is(err, readings.ErrInvalidWindow),
		errors.Is(err, readings.ErrInvalidReading),
		errors.Is(err, batterychart.ErrInvalidValue),
		errors.Is(err, batterychart.ErrInvalidTime):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrDeviceNotFound),
		errors.Is(err, tg_charts.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.LogError("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	log.LogDebug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.LogError("Failed to encode JSON response", zap.Error(err))
	}
}
