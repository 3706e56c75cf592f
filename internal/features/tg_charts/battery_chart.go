package tg_charts

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"battery-chart/internal/features/batterychart"
	logging "battery-chart/internal/infra/log"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
)

const (
	defaultChartWidth  = 1200
	defaultChartHeight = 600

	marginLeft   = 80.0
	marginRight  = 40.0
	marginTop    = 70.0
	marginBottom = 70.0

	titleFontSize = 26.0
	axisFontSize  = 16.0

	lineWidth  = 3.0
	pointSize  = 4.0
	gridLines  = 4
	timeLayout = "01-02 15:04"
)

var (
	backgroundColor = color.RGBA{0x0d, 0x11, 0x17, 0xff}
	gridColor       = color.RGBA{0x30, 0x36, 0x3d, 0xff}
	textColor       = color.RGBA{0xc9, 0xd1, 0xd9, 0xff}
	lineColor       = color.RGBA{0x56, 0xd3, 0x64, 0xff}
	lowColor        = color.RGBA{0xf8, 0x71, 0x71, 0xff}
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no battery readings to plot")

// fontPaths tried in order, first hit wins. Without any, gg's built-in face is used.
var fontPaths = []string{
	"etc/fonts/Inter-Regular.ttf",
	"etc/fonts/InterVariable.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/Library/Fonts/Arial.ttf",
}

// ImageOptions controls the PNG snapshot.
type ImageOptions struct {
	Width    int
	Height   int
	Title    string
	FontPath string // overrides fontPaths
	// LowThreshold draws points at or below it in red; 0 disables. Only used for 0..100 series.
	LowThreshold float64
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.Width <= 0 {
		o.Width = defaultChartWidth
	}
	if o.Height <= 0 {
		o.Height = defaultChartHeight
	}
	if o.Title == "" {
		o.Title = batterychart.DefaultValueLabel
	}
	return o
}

// RenderBatteryChart draws rows as a PNG line chart into w.
func RenderBatteryChart(w io.Writer, rows []batterychart.Row, opts ImageOptions) error {
	dc, err := drawBatteryChart(rows, opts)
	if err != nil {
		return err
	}
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode battery chart: %w", err)
	}
	return nil
}

// SaveBatteryChart writes the PNG to path, creating parent directories.
func SaveBatteryChart(path string, rows []batterychart.Row, opts ImageOptions) error {
	dc, err := drawBatteryChart(rows, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save battery chart: %w", err)
	}
	logging.LogInfo("Battery chart saved", zap.String("path", path), zap.Int("points", len(rows)))
	return nil
}

// valueRange returns the y axis bounds: 0..100 when every value fits, otherwise min..max padded by 5%.
func valueRange(rows []batterychart.Row) (lo, hi float64, percent bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		lo = math.Min(lo, r.Value)
		hi = math.Max(hi, r.Value)
	}
	if lo >= 0 && hi <= 100 {
		return 0, 100, true
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 1)
	}
	return lo - pad, hi + pad, false
}

// timeRange returns the x axis bounds; a single instant is widened to one hour.
func timeRange(rows []batterychart.Row) (time.Time, time.Time) {
	first, last := rows[0].Time, rows[0].Time
	for _, r := range rows[1:] {
		if r.Time.Before(first) {
			first = r.Time
		}
		if r.Time.After(last) {
			last = r.Time
		}
	}
	if !last.After(first) {
		first = first.Add(-30 * time.Minute)
		last = last.Add(30 * time.Minute)
	}
	return first, last
}

func drawBatteryChart(rows []batterychart.Row, opts ImageOptions) (*gg.Context, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	for i, r := range rows {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return nil, fmt.Errorf("row %d: %w", i, batterychart.ErrInvalidValue)
		}
	}
	opts = opts.withDefaults()

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(backgroundColor)
	dc.Clear()

	fontPath := loadFont(dc, opts.FontPath)
	setFontSize(dc, fontPath, titleFontSize)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(opts.Title, marginLeft, marginTop/2, 0, 0.5)

	left, right := marginLeft, float64(opts.Width)-marginRight
	top, bottom := marginTop, float64(opts.Height)-marginBottom
	lo, hi, percent := valueRange(rows)
	first, last := timeRange(rows)

	xOf := func(t time.Time) float64 {
		return left + (right-left)*float64(t.Sub(first))/float64(last.Sub(first))
	}
	yOf := func(v float64) float64 {
		return bottom - (bottom-top)*(v-lo)/(hi-lo)
	}

	// grid and y labels
	setFontSize(dc, fontPath, axisFontSize)
	dc.SetLineWidth(1)
	for i := 0; i <= gridLines; i++ {
		v := lo + (hi-lo)*float64(i)/gridLines
		y := yOf(v)
		dc.SetColor(gridColor)
		dc.DrawLine(left, y, right, y)
		dc.Stroke()
		dc.SetColor(textColor)
		dc.DrawStringAnchored(strconv.FormatFloat(v, 'f', precision(hi-lo), 64), left-10, y, 1, 0.5)
	}

	// x labels: first, middle, last
	for i, t := range []time.Time{first, first.Add(last.Sub(first) / 2), last} {
		ax := float64(i) / 2
		dc.DrawStringAnchored(t.UTC().Format(timeLayout), xOf(t), bottom+24, ax, 0.5)
	}

	// series, in input order
	dc.SetColor(lineColor)
	dc.SetLineWidth(lineWidth)
	for i, r := range rows {
		if i == 0 {
			dc.MoveTo(xOf(r.Time), yOf(r.Value))
		} else {
			dc.LineTo(xOf(r.Time), yOf(r.Value))
		}
	}
	dc.Stroke()

	for _, r := range rows {
		if percent && opts.LowThreshold > 0 && r.Value <= opts.LowThreshold {
			dc.SetColor(lowColor)
		} else {
			dc.SetColor(lineColor)
		}
		dc.DrawCircle(xOf(r.Time), yOf(r.Value), pointSize)
		dc.Fill()
	}

	return dc, nil
}

func precision(span float64) int {
	if span >= 10 {
		return 0
	}
	return 1
}

// loadFont returns the first loadable font path ("" when none, gg's default face stays).
func loadFont(dc *gg.Context, override string) string {
	paths := fontPaths
	if override != "" {
		paths = append([]string{override}, fontPaths...)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := dc.LoadFontFace(p, axisFontSize); err != nil {
			logging.LogWarn("Font file exists but failed to load", zap.String("path", p), zap.Error(err))
			continue
		}
		return p
	}
	logging.LogDebug("No TTF font found, using default face", zap.Int("paths_checked", len(paths)))
	return ""
}

func setFontSize(dc *gg.Context, fontPath string, size float64) {
	if fontPath == "" {
		return
	}
	if err := dc.LoadFontFace(fontPath, size); err != nil {
		logging.LogWarn("Failed to resize font", zap.String("path", fontPath), zap.Error(err))
	}
}
