package batterychart

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseRows(t *testing.T, lines ...string) []Row {
	t.Helper()
	rows := make([]Row, 0, len(lines))
	for _, l := range lines {
		r, err := ParseRow(l)
		require.NoError(t, err, l)
		rows = append(rows, r)
	}
	return rows
}

func TestRender_ExampleRows(t *testing.T) {
	rows := mustParseRows(t, "2024-01-01T00:00:00, 98", "2024-01-01T01:00:00, 95")

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(Options{}).Render(&buf, rows))
	out := buf.String()

	first := strings.Index(out, "data.addRow([new Date(1704067200000), 98]);")
	second := strings.Index(out, "data.addRow([new Date(1704070800000), 95]);")
	require.NotEqual(t, -1, first, out)
	require.NotEqual(t, -1, second, out)
	assert.Less(t, first, second)
	assert.Equal(t, 2, strings.Count(out, "data.addRow("))
}

func TestRender_RowCountAndOrder(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// deliberately not time-ordered: the fragment must not reorder
	values := []float64{50, 80, 12.5, 100, 0, 33}
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{Time: base.Add(time.Duration(len(values)-i) * time.Hour), Value: v}
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(DefaultOptions()).Render(&buf, rows))
	out := buf.String()

	assert.Equal(t, len(rows), strings.Count(out, "data.addRow("))
	last := -1
	for _, r := range rows {
		lit, err := FormatRow(r)
		require.NoError(t, err)
		idx := strings.Index(out, "data.addRow(["+lit+"]);")
		require.NotEqual(t, -1, idx, lit)
		assert.Greater(t, idx, last, "row %q out of order", lit)
		last = idx
	}
}

func TestRender_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(Options{}).Render(&buf, nil))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, "data.addColumn("))
	assert.Contains(t, out, `data.addColumn('datetime', "Time");`)
	assert.Contains(t, out, `data.addColumn('number', "Remaining Battery");`)
	assert.NotContains(t, out, "data.addRow(")
	assert.Contains(t, out, "chart.draw(data, {});")
}

func TestRender_WidgetWiring(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Options{ContainerID: "dev42_chart", ValueLabel: "Battery (%)"})
	require.NoError(t, r.Render(&buf, nil))
	out := buf.String()

	assert.Contains(t, out, `src="https://www.gstatic.com/charts/loader.js"`)
	assert.Contains(t, out, `google.charts.load("current", {packages: ["annotationchart"]});`)
	assert.Contains(t, out, "google.charts.setOnLoadCallback(function() {")
	assert.Contains(t, out, `document.getElementById("dev42_chart")`)
	assert.Contains(t, out, "new google.visualization.AnnotationChart(")
	assert.Contains(t, out, `"Battery (%)"`)
}

func TestRender_ChartClassFollowsPackage(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Options{Package: "corechart"})
	require.NoError(t, r.Render(&buf, mustParseRows(t, "2024-01-01T00:00:00, 98")))
	out := buf.String()

	assert.Contains(t, out, `{packages: ["corechart"]}`)
	assert.Contains(t, out, "new google.visualization.LineChart(")
	assert.NotContains(t, out, "AnnotationChart")
}

func TestRender_UnsupportedPackage(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Options{Package: "gauge"})
	err := r.Render(&buf, mustParseRows(t, "2024-01-01T00:00:00, 98"))
	assert.ErrorIs(t, err, ErrUnsupportedPackage)
	assert.Zero(t, buf.Len())

	err = r.RenderPage(&buf, PageData{})
	assert.ErrorIs(t, err, ErrUnsupportedPackage)
	assert.Zero(t, buf.Len())
}

func TestRender_DrawOptions(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Options{DrawOptions: map[string]any{"displayAnnotations": false}})
	require.NoError(t, r.Render(&buf, nil))
	assert.Contains(t, buf.String(), `chart.draw(data, {"displayAnnotations":false});`)
}

func TestRender_LabelsAreEscaped(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Options{ValueLabel: `</script><b>x</b>`})
	require.NoError(t, r.Render(&buf, nil))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, "</script>"), "label must not close the script element")
	assert.NotContains(t, out, "<b>x</b>")
}

func TestRender_Idempotent(t *testing.T) {
	rows := mustParseRows(t, "2024-01-01T00:00:00, 98", "2024-01-01T01:00:00, 95", "2024-01-01T02:00:00, 91.5")
	r := NewRenderer(Options{})

	var a, b bytes.Buffer
	require.NoError(t, r.Render(&a, rows))
	require.NoError(t, r.Render(&b, rows))
	assert.Equal(t, a.String(), b.String())
}

func TestRender_InvalidValueWritesNothing(t *testing.T) {
	rows := []Row{
		{Time: time.Unix(0, 0), Value: 90},
		{Time: time.Unix(60, 0), Value: math.NaN()},
	}

	var buf bytes.Buffer
	err := NewRenderer(Options{}).Render(&buf, rows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	assert.Contains(t, err.Error(), "row 1")
	assert.Zero(t, buf.Len())
}

func TestRenderString(t *testing.T) {
	rows := mustParseRows(t, "1704067200000, 98")
	html, err := NewRenderer(Options{}).RenderString(rows)
	require.NoError(t, err)
	assert.Contains(t, string(html), "data.addRow([new Date(1704067200000), 98]);")
}

func TestRenderPage(t *testing.T) {
	rows := mustParseRows(t, "2024-01-01T00:00:00, 98")

	var buf bytes.Buffer
	err := NewRenderer(Options{}).RenderPage(&buf, PageData{DeviceID: "phone-1", Rows: rows})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `<div id="battery_chart_div"`)
	assert.Contains(t, out, "Device phone-1")
	assert.Contains(t, out, "data.addRow([new Date(1704067200000), 98]);")
	assert.NotContains(t, out, "No battery readings")
	// the container is declared before the script that looks it up
	assert.Less(t, strings.Index(out, `id="battery_chart_div"`), strings.Index(out, "getElementById("))
}

func TestRenderPage_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer(Options{}).RenderPage(&buf, PageData{Title: "Battery"}))
	out := buf.String()

	assert.Contains(t, out, "No battery readings")
	assert.Contains(t, out, `<div id="battery_chart_div"`)
	assert.NotContains(t, out, "data.addRow(")
}
