package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/nnikhil6/greenwave/internal/journal"
)

// echartsAssets is where the rendered pages load the echarts runtime from.
const echartsAssets = "https://go-echarts.github.io/go-echarts-assets/assets/"

// monitorWindow parses the shared ?window=<minutes> parameter, loads the
// decision rows for it, and writes the error response itself on failure.
func (s *Server) monitorWindow(w http.ResponseWriter, r *http.Request) ([]journal.DecisionRow, time.Duration, bool) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return nil, 0, false
	}
	if s.journal == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return nil, 0, false
	}

	window := 15 * time.Minute
	if mins := r.URL.Query().Get("window"); mins != "" {
		v, err := strconv.Atoi(mins)
		if err != nil || v < 1 || v > 24*60 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'window' parameter, want minutes in 1..1440")
			return nil, 0, false
		}
		window = time.Duration(v) * time.Minute
	}

	end := time.Now()
	rows, err := s.journal.DecisionsBetween(end.Add(-window), end)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("decision query failed: %v", err))
		return nil, 0, false
	}
	if len(rows) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no decisions in window")
		return nil, 0, false
	}
	return rows, window, true
}

// renderCorridorChart draws one line per intersection over the tick axis.
// Every tick journals a full decision set, so the category axis lines up
// across series.
func (s *Server) renderCorridorChart(w http.ResponseWriter, rows []journal.DecisionRow, window time.Duration, title, yName string, value func(journal.DecisionRow) float64) {
	var ticks []string
	seen := make(map[int64]bool)
	series := make(map[string][]opts.LineData)
	for _, row := range rows {
		if !seen[row.Tick] {
			seen[row.Tick] = true
			ticks = append(ticks, strconv.FormatInt(row.Tick, 10))
		}
		series[row.Intersection] = append(series[row.Intersection], opts.LineData{Value: value(row)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1400px", Height: "720px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("corridor=%s window=%s ticks=%d", s.coord.Corridor().Name, window, len(ticks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)

	line.SetXAxis(ticks)
	for _, id := range s.coord.Corridor().IDs() {
		pts := series[id]
		if len(pts) == 0 {
			continue
		}
		line.AddSeries(id, pts, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// monitorTiming charts the assigned green duration per intersection per tick.
func (s *Server) monitorTiming(w http.ResponseWriter, r *http.Request) {
	rows, window, ok := s.monitorWindow(w, r)
	if !ok {
		return
	}
	s.renderCorridorChart(w, rows, window, "Assigned Green per Tick", "assigned (s)", func(row journal.DecisionRow) float64 {
		return float64(row.DurationMS) / 1000.0
	})
}

// monitorDensity charts the smoothed density per intersection per tick.
func (s *Server) monitorDensity(w http.ResponseWriter, r *http.Request) {
	rows, window, ok := s.monitorWindow(w, r)
	if !ok {
		return
	}
	s.renderCorridorChart(w, rows, window, "Corridor Density per Tick", "density", func(row journal.DecisionRow) float64 {
		return row.Density
	})
}
