// Package main provides a corridor timing report generator.
// It reads a greenwave journal, computes per-intersection signal timing
// statistics over a window, and writes an HTML report with optional PDF
// timing bands alongside a machine-readable JSON summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nnikhil6/greenwave/internal/corridor"
	"github.com/nnikhil6/greenwave/internal/journal"
	"github.com/nnikhil6/greenwave/internal/security"
	"github.com/nnikhil6/greenwave/internal/units"
)

const echartsAssets = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Config holds configuration for the report run.
type Config struct {
	DBPath    string
	OutputDir string
	Window    time.Duration
	Start     string
	End       string
	Timezone  string
	HTML      bool
	PDF       bool
	JSON      bool
}

// Report is the full computed report, also exported as JSON.
type Report struct {
	Journal       string              `json:"journal"`
	WindowStart   time.Time           `json:"window_start"`
	WindowEnd     time.Time           `json:"window_end"`
	Timezone      string              `json:"timezone"`
	Ticks         int                 `json:"ticks"`
	Decisions     int                 `json:"decisions"`
	Intersections []IntersectionStats `json:"intersections"`
}

// IntersectionStats summarizes one intersection's timing over the window.
// Green percentiles sample green entries only (one per cycle), matching the
// journal's periodic rollups.
type IntersectionStats struct {
	Intersection  string  `json:"intersection"`
	Decisions     int     `json:"decisions"`
	PhaseChanges  int     `json:"phase_changes"`
	GreenCycles   int     `json:"green_cycles"`
	MeanDensity   float64 `json:"mean_density"`
	MaxDensity    float64 `json:"max_density"`
	MeanGreenSecs float64 `json:"mean_green_secs"`
	P50GreenSecs  float64 `json:"p50_green_secs"`
	P85GreenSecs  float64 `json:"p85_green_secs"`
	P95GreenSecs  float64 `json:"p95_green_secs"`
	HoldShare     float64 `json:"hold_share"`
	OverrideShare float64 `json:"override_share"`
}

func main() {
	config := parseFlags()

	if config.DBPath == "" {
		fmt.Fprintln(os.Stderr, "Error: journal database is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: journal not found: %s\n", config.DBPath)
		os.Exit(1)
	}

	if !units.IsTimezoneValid(config.Timezone) {
		log.Fatalf("Invalid timezone %q (common zones: %s)", config.Timezone, units.GetValidTimezonesString())
	}
	if !units.IsCommonTimezone(config.Timezone) {
		log.Printf("Note: timezone %s is outside the common list; using it anyway", config.Timezone)
	}

	start, end, err := resolveWindow(config)
	if err != nil {
		log.Fatalf("Bad report window: %v", err)
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	j, err := journal.OpenRaw(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	rows, err := j.DecisionsBetween(start, end)
	if err != nil {
		log.Fatalf("Failed to read decisions: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("No decisions between %v and %v", start.UTC(), end.UTC())
	}

	report := buildReport(config, rows, start, end)
	printReport(config, report)

	if err := exportReport(config, report, rows); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.DBPath, "db", "", "Path to the journal database (required)")
	flag.StringVar(&config.OutputDir, "output", ".", "Output directory for report files")
	flag.DurationVar(&config.Window, "window", time.Hour, "Report window ending now (ignored when -start/-end given)")
	flag.StringVar(&config.Start, "start", "", "Window start, RFC3339 (default: end minus window)")
	flag.StringVar(&config.End, "end", "", "Window end, RFC3339 (default: now)")
	flag.StringVar(&config.Timezone, "tz", "UTC", "Timezone for displayed timestamps")
	flag.BoolVar(&config.HTML, "html", true, "Write an HTML report with charts")
	flag.BoolVar(&config.PDF, "pdf", false, "Write PDF timing bands")
	flag.BoolVar(&config.JSON, "json", true, "Write the report as JSON")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Corridor Timing Report Generator\n\n")
		fmt.Fprintf(os.Stderr, "Reads journaled phase decisions and summarizes per-intersection timing:\n")
		fmt.Fprintf(os.Stderr, "  density means, green-time percentiles, downstream-hold and incident\n")
		fmt.Fprintf(os.Stderr, "  override shares. Output goes to stdout plus report files in -output.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -db greenwave.db -window 4h\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -db greenwave.db -start 2026-08-25T06:00:00Z -end 2026-08-25T10:00:00Z -pdf\n", os.Args[0])
	}

	flag.Parse()
	return config
}

// resolveWindow turns the flags into an absolute [start, end) range. An
// explicit -start/-end wins over -window; a lone -start pairs with now and a
// lone -end pairs with end minus window.
func resolveWindow(config Config) (time.Time, time.Time, error) {
	end := time.Now()
	if config.End != "" {
		t, err := time.Parse(time.RFC3339, config.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
		end = t
	}

	start := end.Add(-config.Window)
	if config.Start != "" {
		t, err := time.Parse(time.RFC3339, config.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = t
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %v is not before end %v", start, end)
	}
	return start, end, nil
}

type rollup struct {
	decisions int
	changes   int
	densities []float64
	greens    []float64
	holds     int
	overrides int
}

func buildReport(config Config, rows []journal.DecisionRow, start, end time.Time) *Report {
	rollups := make(map[string]*rollup)
	ticks := 0
	lastTick := int64(-1)

	for _, row := range rows {
		if row.Tick != lastTick {
			ticks++
			lastTick = row.Tick
		}

		r := rollups[row.Intersection]
		if r == nil {
			r = &rollup{}
			rollups[row.Intersection] = r
		}

		r.decisions++
		r.densities = append(r.densities, row.Density)
		if row.Changed {
			r.changes++
		}
		// Green entries only, one sample per cycle, so long greens do not
		// dominate the percentiles by tick count.
		if row.Phase == string(corridor.PhaseGreen) && row.Changed {
			r.greens = append(r.greens, float64(row.DurationMS)/1000.0)
		}
		switch row.Reason {
		case string(corridor.ReasonDownstreamHold):
			r.holds++
		case string(corridor.ReasonIncidentOverride):
			r.overrides++
		}
	}

	ids := make([]string, 0, len(rollups))
	for id := range rollups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &Report{
		Journal:     config.DBPath,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
		Timezone:    config.Timezone,
		Ticks:       ticks,
		Decisions:   len(rows),
	}

	for _, id := range ids {
		r := rollups[id]
		s := IntersectionStats{
			Intersection: id,
			Decisions:    r.decisions,
			PhaseChanges: r.changes,
			GreenCycles:  len(r.greens),
		}
		if len(r.densities) > 0 {
			s.MeanDensity = stat.Mean(r.densities, nil)
			s.MaxDensity = floats.Max(r.densities)
		}
		if len(r.greens) > 0 {
			sort.Float64s(r.greens)
			s.MeanGreenSecs = stat.Mean(r.greens, nil)
			s.P50GreenSecs = stat.Quantile(0.5, stat.Empirical, r.greens, nil)
			s.P85GreenSecs = stat.Quantile(0.85, stat.Empirical, r.greens, nil)
			s.P95GreenSecs = stat.Quantile(0.95, stat.Empirical, r.greens, nil)
		}
		if r.decisions > 0 {
			s.HoldShare = float64(r.holds) / float64(r.decisions)
			s.OverrideShare = float64(r.overrides) / float64(r.decisions)
		}
		report.Intersections = append(report.Intersections, s)
	}

	return report
}

func printReport(config Config, report *Report) {
	startLocal, err := units.ConvertTime(report.WindowStart, config.Timezone)
	if err != nil {
		startLocal = report.WindowStart
	}
	endLocal, err := units.ConvertTime(report.WindowEnd, config.Timezone)
	if err != nil {
		endLocal = report.WindowEnd
	}

	const stampFormat = "2006-01-02 15:04:05"

	fmt.Println("\n========== Corridor Timing Report ==========")
	fmt.Printf("Journal: %s\n", report.Journal)
	fmt.Printf("Window: %s to %s (%s)\n",
		startLocal.Format(stampFormat), endLocal.Format(stampFormat), units.GetTimezoneLabel(config.Timezone))
	fmt.Printf("Ticks: %d\n", report.Ticks)
	fmt.Printf("Decisions: %d\n", report.Decisions)

	fmt.Println("\nPer-intersection timing:")
	for _, s := range report.Intersections {
		fmt.Printf("  %s: %d decisions, %d phase changes, %d green cycles\n",
			s.Intersection, s.Decisions, s.PhaseChanges, s.GreenCycles)
		fmt.Printf("    Density: mean %.2f, max %.2f\n", s.MeanDensity, s.MaxDensity)
		fmt.Printf("    Green: mean %.1fs, p50 %.1fs, p85 %.1fs, p95 %.1fs\n",
			s.MeanGreenSecs, s.P50GreenSecs, s.P85GreenSecs, s.P95GreenSecs)
		fmt.Printf("    Coordination: hold %.1f%%, override %.1f%%\n",
			100*s.HoldShare, 100*s.OverrideShare)
	}
	fmt.Println("=============================================")
}

func exportReport(config Config, report *Report, rows []journal.DecisionRow) error {
	const stamp = "20060102T150405Z"
	dbBase := strings.TrimSuffix(filepath.Base(config.DBPath), filepath.Ext(config.DBPath))
	baseName := fmt.Sprintf("%s-timing-%s-%s",
		security.SanitizeFilename(dbBase),
		report.WindowStart.Format(stamp),
		report.WindowEnd.Format(stamp))

	if config.JSON {
		jsonPath := filepath.Join(config.OutputDir, baseName+".json")
		if err := security.ValidateExportPath(jsonPath); err != nil {
			return fmt.Errorf("invalid JSON output path: %w", err)
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		log.Printf("✓ Created: %s", jsonPath)
	}

	if config.HTML {
		htmlPath := filepath.Join(config.OutputDir, baseName+".html")
		if err := security.ValidateExportPath(htmlPath); err != nil {
			return fmt.Errorf("invalid HTML output path: %w", err)
		}
		if err := writeHTMLReport(htmlPath, report, rows); err != nil {
			return fmt.Errorf("write HTML report: %w", err)
		}
		log.Printf("✓ Created: %s", htmlPath)
	}

	if config.PDF {
		pdfPath := filepath.Join(config.OutputDir, baseName+"-bands.pdf")
		if err := security.ValidateExportPath(pdfPath); err != nil {
			return fmt.Errorf("invalid PDF output path: %w", err)
		}
		if err := writeTimingBands(pdfPath, rows); err != nil {
			return fmt.Errorf("write timing bands: %w", err)
		}
		log.Printf("✓ Created: %s", pdfPath)
	}

	return nil
}

// writeHTMLReport renders a density line chart and a green-percentile bar
// chart onto one page.
func writeHTMLReport(path string, report *Report, rows []journal.DecisionRow) error {
	ticks := make([]string, 0, report.Ticks)
	seen := make(map[int64]bool, report.Ticks)
	densitySeries := make(map[string][]opts.LineData)
	greenSeries := make(map[string][]opts.LineData)

	// Every tick journals a full decision set, so the category axis lines up
	// across series.
	for _, row := range rows {
		if !seen[row.Tick] {
			seen[row.Tick] = true
			ticks = append(ticks, strconv.FormatInt(row.Tick, 10))
		}
		densitySeries[row.Intersection] = append(densitySeries[row.Intersection],
			opts.LineData{Value: row.Density})
		greenSeries[row.Intersection] = append(greenSeries[row.Intersection],
			opts.LineData{Value: float64(row.DurationMS) / 1000.0})
	}

	subtitle := fmt.Sprintf("journal=%s window=%s to %s ticks=%d",
		report.Journal,
		report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339),
		report.Ticks)

	density := charts.NewLine()
	density.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "480px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: "Corridor Density per Tick", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "density"}),
	)
	density.SetXAxis(ticks)

	assigned := charts.NewLine()
	assigned.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "480px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: "Assigned Phase Duration per Tick", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "assigned (s)"}),
	)
	assigned.SetXAxis(ticks)

	for _, s := range report.Intersections {
		density.AddSeries(s.Intersection, densitySeries[s.Intersection],
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
		assigned.AddSeries(s.Intersection, greenSeries[s.Intersection],
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	}

	names := make([]string, 0, len(report.Intersections))
	p50 := make([]opts.BarData, 0, len(report.Intersections))
	p85 := make([]opts.BarData, 0, len(report.Intersections))
	p95 := make([]opts.BarData, 0, len(report.Intersections))
	for _, s := range report.Intersections {
		names = append(names, s.Intersection)
		p50 = append(p50, opts.BarData{Value: s.P50GreenSecs})
		p85 = append(p85, opts.BarData{Value: s.P85GreenSecs})
		p95 = append(p95, opts.BarData{Value: s.P95GreenSecs})
	}

	percentiles := charts.NewBar()
	percentiles.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1400px", Height: "480px", AssetsHost: echartsAssets}),
		charts.WithTitleOpts(opts.Title{Title: "Green Time Percentiles", Subtitle: "per green cycle, seconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	percentiles.SetXAxis(names).
		AddSeries("p50", p50).
		AddSeries("p85", p85).
		AddSeries("p95", p95)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssets)
	page.PageTitle = "Corridor Timing Report"
	page.AddCharts(density, assigned, percentiles)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

// writeTimingBands plots assigned phase duration against tick for every
// intersection, one line each.
func writeTimingBands(path string, rows []journal.DecisionRow) error {
	series := make(map[string]plotter.XYs)
	for _, row := range rows {
		series[row.Intersection] = append(series[row.Intersection], plotter.XY{
			X: float64(row.Tick),
			Y: float64(row.DurationMS) / 1000.0,
		})
	}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p := plot.New()
	p.Title.Text = "Corridor Timing Bands"
	p.X.Label.Text = "Tick"
	p.Y.Label.Text = "Assigned (s)"
	p.Legend.Top = true

	colors := linePalette(len(ids))
	for i, id := range ids {
		line, err := plotter.NewLine(series[id])
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(id, line)
	}

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
