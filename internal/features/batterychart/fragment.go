package batterychart

// Server-side rendering of the battery chart fragment
// Emits a <script> block that loads the Google Charts widget, declares the
// time and value columns, adds one row per reading and draws the chart into
// the container element

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
)

const (
	DefaultLoaderURL   = "https://www.gstatic.com/charts/loader.js"
	DefaultVersion     = "current"
	DefaultPackage     = "annotationchart"
	DefaultContainerID = "battery_chart_div"
	DefaultTimeLabel   = "Time"
	DefaultValueLabel  = "Remaining Battery"
	DefaultWidth       = "100%"
	DefaultHeight      = "400px"
)

// ErrUnsupportedPackage is returned for a widget package without a known chart class.
var ErrUnsupportedPackage = errors.New("unsupported chart package")

// chartClasses maps a loader package to the google.visualization class drawn from it.
var chartClasses = map[string]string{
	"annotationchart": "AnnotationChart",
	"corechart":       "LineChart",
}

// ChartClass returns the google.visualization constructor for pkg.
func ChartClass(pkg string) (string, error) {
	class, ok := chartClasses[pkg]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: annotationchart, corechart)", ErrUnsupportedPackage, pkg)
	}
	return class, nil
}

// Options controls the widget and the container the chart attaches to.
// Zero fields take the Default* values.
type Options struct {
	LoaderURL   string
	Version     string
	Package     string
	ContainerID string
	TimeLabel   string
	ValueLabel  string
	Width       string
	Height      string
	// DrawOptions is passed to chart.draw as a JSON object.
	DrawOptions map[string]any
}

func DefaultOptions() Options {
	return Options{
		LoaderURL:   DefaultLoaderURL,
		Version:     DefaultVersion,
		Package:     DefaultPackage,
		ContainerID: DefaultContainerID,
		TimeLabel:   DefaultTimeLabel,
		ValueLabel:  DefaultValueLabel,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		DrawOptions: map[string]any{},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LoaderURL == "" {
		o.LoaderURL = d.LoaderURL
	}
	if o.Version == "" {
		o.Version = d.Version
	}
	if o.Package == "" {
		o.Package = d.Package
	}
	if o.ContainerID == "" {
		o.ContainerID = d.ContainerID
	}
	if o.TimeLabel == "" {
		o.TimeLabel = d.TimeLabel
	}
	if o.ValueLabel == "" {
		o.ValueLabel = d.ValueLabel
	}
	if o.Width == "" {
		o.Width = d.Width
	}
	if o.Height == "" {
		o.Height = d.Height
	}
	if o.DrawOptions == nil {
		o.DrawOptions = d.DrawOptions
	}
	return o
}

const tmplFragment = `{{define "fragment"}}<script type="text/javascript" src="{{.LoaderURL}}"></script>
<script type="text/javascript">
(function() {
  google.charts.load({{.Version}}, {packages: [{{.Package}}]});
  google.charts.setOnLoadCallback(function() {
    var data = new google.visualization.DataTable();
    data.addColumn('datetime', {{.TimeLabel}});
    data.addColumn('number', {{.ValueLabel}});
{{range .Rows}}    data.addRow([{{.}}]);
{{end}}    var chart = new google.visualization.{{.Class}}(
        document.getElementById({{.ContainerID}}));
    chart.draw(data, {{.DrawOptions}});
  });
})();
</script>
{{end}}`

const tmplPage = `{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:0;background:#fafafa;color:#202124}
nav{background:#fff;border-bottom:1px solid #dadce0;padding:8px 16px}
main{padding:16px}
h1{font-size:18px;margin-bottom:8px}
.dim{color:#5f6368;font-size:13px}
.empty{color:#5f6368;padding:24px 0}
</style>
</head>
<body>
<nav><a href="/">Devices</a></nav>
<main>
<h1>{{.Title}}</h1>
{{if .DeviceID}}<div class="dim">Device {{.DeviceID}} · {{len .Chart.Rows}} readings</div>{{end}}
{{if not .Chart.Rows}}<div class="empty">No battery readings in the selected range.</div>{{end}}
<div id="{{.Chart.ContainerID}}" style="width: {{.Chart.Width}}; height: {{.Chart.Height}};"></div>
{{template "fragment" .Chart}}</main>
</body>
</html>
{{end}}`

var templates = template.Must(template.New("batterychart").Parse(tmplFragment + tmplPage))

// fragmentData is the view model of the "fragment" template.
type fragmentData struct {
	Options
	Class template.JS
	Rows  []template.JS
}

// PageData describes a full chart page.
type PageData struct {
	Title    string
	DeviceID string
	Rows     []Row
}

type pageView struct {
	Title    string
	DeviceID string
	Chart    fragmentData
}

// Renderer renders the chart fragment. It is immutable and safe for concurrent use.
type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts.withDefaults()}
}

// Options returns the effective options, defaults applied.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render writes the script block for rows, in the given order.
// A row that cannot be formatted aborts rendering before anything is written to w.
func (r *Renderer) Render(w io.Writer, rows []Row) error {
	data, err := r.fragmentData(rows)
	if err != nil {
		return err
	}
	return r.execute(w, "fragment", data)
}

// RenderString renders the fragment for embedding into a host page template.
func (r *Renderer) RenderString(rows []Row) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, rows); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// RenderPage writes a full HTML page containing the container element and the fragment.
func (r *Renderer) RenderPage(w io.Writer, page PageData) error {
	data, err := r.fragmentData(page.Rows)
	if err != nil {
		return err
	}
	title := page.Title
	if title == "" {
		title = "Battery level"
	}
	return r.execute(w, "page", pageView{Title: title, DeviceID: page.DeviceID, Chart: data})
}

func (r *Renderer) fragmentData(rows []Row) (fragmentData, error) {
	class, err := ChartClass(r.opts.Package)
	if err != nil {
		return fragmentData{}, err
	}
	literals := make([]template.JS, 0, len(rows))
	for i, row := range rows {
		lit, err := FormatRow(row)
		if err != nil {
			return fragmentData{}, fmt.Errorf("row %d: %w", i, err)
		}
		// FormatRow only emits a Date constructor and a numeric literal.
		literals = append(literals, template.JS(lit))
	}
	// class comes from chartClasses, never from input.
	return fragmentData{Options: r.opts, Class: template.JS(class), Rows: literals}, nil
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
