package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/features/tg_charts"
)

// go run etc/tools/test_chart.go
// in etc/charts/battery_chart.png (+ battery_chart.html)
func main() {
	fmt.Println("Generating test chart...")

	rows := sampleRows(time.Now().Add(-48*time.Hour), 48)

	chartPath := "etc/charts/battery_chart.png"
	if err := tg_charts.SaveBatteryChart(chartPath, rows, tg_charts.ImageOptions{Title: "Battery · sample", LowThreshold: 20}); err != nil {
		fmt.Printf("Error generating chart: %v\n", err)
		os.Exit(1)
	}

	pagePath := "etc/charts/battery_chart.html"
	f, err := os.Create(pagePath)
	if err != nil {
		fmt.Printf("Error creating page: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := batterychart.NewRenderer(batterychart.DefaultOptions()).RenderPage(f, batterychart.PageData{DeviceID: "sample", Rows: rows}); err != nil {
		fmt.Printf("Error rendering page: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Chart generated successfully: %s, %s\n", chartPath, pagePath)
	fmt.Println("Open the files to see the result!")
}

// sampleRows discharges from 100 and recharges once the level drops under 15.
func sampleRows(start time.Time, hours int) []batterychart.Row {
	rows := make([]batterychart.Row, 0, hours)
	level := 100.0
	charging := false
	for i := 0; i < hours; i++ {
		switch {
		case charging:
			level = math.Min(100, level+25)
			charging = level < 100
		default:
			level -= 4 + 3*math.Sin(float64(i)/3)
			if level < 15 {
				charging = true
			}
		}
		rows = append(rows, batterychart.Row{Time: start.Add(time.Duration(i) * time.Hour), Value: math.Round(level)})
	}
	return rows
}
