package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nnikhil6/greenwave/internal/journal"
)

func TestResolveWindow(t *testing.T) {
	t.Run("explicit range", func(t *testing.T) {
		cfg := Config{
			Start: "2026-08-25T06:00:00Z",
			End:   "2026-08-25T10:00:00Z",
		}
		start, end, err := resolveWindow(cfg)
		if err != nil {
			t.Fatalf("resolveWindow error: %v", err)
		}
		if got := end.Sub(start); got != 4*time.Hour {
			t.Fatalf("window = %v, want 4h", got)
		}
	})

	t.Run("window only", func(t *testing.T) {
		cfg := Config{Window: 30 * time.Minute}
		start, end, err := resolveWindow(cfg)
		if err != nil {
			t.Fatalf("resolveWindow error: %v", err)
		}
		if got := end.Sub(start); got != 30*time.Minute {
			t.Fatalf("window = %v, want 30m", got)
		}
	})

	t.Run("end with window", func(t *testing.T) {
		cfg := Config{Window: time.Hour, End: "2026-08-25T10:00:00Z"}
		start, _, err := resolveWindow(cfg)
		if err != nil {
			t.Fatalf("resolveWindow error: %v", err)
		}
		want := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
		if !start.Equal(want) {
			t.Fatalf("start = %v, want %v", start, want)
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		cfg := Config{
			Start: "2026-08-25T10:00:00Z",
			End:   "2026-08-25T06:00:00Z",
		}
		if _, _, err := resolveWindow(cfg); err == nil {
			t.Fatal("expected error for inverted range")
		}
	})

	t.Run("bad timestamps", func(t *testing.T) {
		if _, _, err := resolveWindow(Config{Start: "yesterday"}); err == nil {
			t.Fatal("expected error for bad -start")
		}
		if _, _, err := resolveWindow(Config{End: "later"}); err == nil {
			t.Fatal("expected error for bad -end")
		}
	})
}

func reportRows() []journal.DecisionRow {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	rows := []journal.DecisionRow{
		{Tick: 1, Intersection: "oak-1st", Phase: "green", DurationMS: 20000, Reason: "normal", Changed: true, Density: 0.5},
		{Tick: 1, Intersection: "oak-2nd", Phase: "red", DurationMS: 23000, Reason: "downstream_hold", Changed: false, Density: 0.8},
		{Tick: 2, Intersection: "oak-1st", Phase: "green", DurationMS: 20000, Reason: "normal", Changed: false, Density: 0.7},
		{Tick: 2, Intersection: "oak-2nd", Phase: "red", DurationMS: 30000, Reason: "incident_override", Changed: true, Density: 0.9},
		{Tick: 3, Intersection: "oak-1st", Phase: "green", DurationMS: 30000, Reason: "normal", Changed: true, Density: 0.3},
		{Tick: 3, Intersection: "oak-2nd", Phase: "red", DurationMS: 30000, Reason: "incident_override", Changed: false, Density: 0.4},
	}
	for i := range rows {
		rows[i].DecidedAt = base.Add(time.Duration(rows[i].Tick) * time.Second)
	}
	return rows
}

func TestBuildReport(t *testing.T) {
	rows := reportRows()
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	report := buildReport(Config{DBPath: "test.db", Timezone: "UTC"}, rows, start, end)

	if report.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", report.Ticks)
	}
	if report.Decisions != 6 {
		t.Errorf("Decisions = %d, want 6", report.Decisions)
	}
	if len(report.Intersections) != 2 {
		t.Fatalf("Intersections = %d, want 2", len(report.Intersections))
	}

	first := report.Intersections[0]
	if first.Intersection != "oak-1st" {
		t.Fatalf("intersections not sorted: %s first", first.Intersection)
	}
	if first.GreenCycles != 2 {
		t.Errorf("oak-1st green cycles = %d, want 2 (changed green entries only)", first.GreenCycles)
	}
	if math.Abs(first.MeanDensity-0.5) > 1e-9 {
		t.Errorf("oak-1st mean density = %f, want 0.5", first.MeanDensity)
	}
	if math.Abs(first.MaxDensity-0.7) > 1e-9 {
		t.Errorf("oak-1st max density = %f, want 0.7", first.MaxDensity)
	}
	if math.Abs(first.MeanGreenSecs-25.0) > 1e-9 {
		t.Errorf("oak-1st mean green = %f, want 25.0", first.MeanGreenSecs)
	}
	if first.HoldShare != 0 || first.OverrideShare != 0 {
		t.Errorf("oak-1st shares = %f/%f, want 0/0", first.HoldShare, first.OverrideShare)
	}

	second := report.Intersections[1]
	if second.GreenCycles != 0 {
		t.Errorf("oak-2nd green cycles = %d, want 0", second.GreenCycles)
	}
	if math.Abs(second.HoldShare-1.0/3.0) > 1e-9 {
		t.Errorf("oak-2nd hold share = %f, want 1/3", second.HoldShare)
	}
	if math.Abs(second.OverrideShare-2.0/3.0) > 1e-9 {
		t.Errorf("oak-2nd override share = %f, want 2/3", second.OverrideShare)
	}
}

func TestWriteHTMLReport(t *testing.T) {
	rows := reportRows()
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	report := buildReport(Config{DBPath: "test.db", Timezone: "UTC"}, rows, start, start.Add(time.Minute))

	path := filepath.Join(t.TempDir(), "report.html")
	if err := writeHTMLReport(path, report, rows); err != nil {
		t.Fatalf("writeHTMLReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	body := string(data)
	for _, want := range []string{"Corridor Density per Tick", "Green Time Percentiles", "oak-1st", "oak-2nd"} {
		if !strings.Contains(body, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestWriteTimingBands(t *testing.T) {
	rows := reportRows()
	path := filepath.Join(t.TempDir(), "bands.pdf")
	if err := writeTimingBands(path, rows); err != nil {
		t.Fatalf("writeTimingBands error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat bands: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("bands PDF is empty")
	}
}

func TestLinePalette(t *testing.T) {
	if got := linePalette(0); got != nil {
		t.Fatalf("linePalette(0) = %v, want nil", got)
	}
	colors := linePalette(4)
	if len(colors) != 4 {
		t.Fatalf("linePalette(4) returned %d colors", len(colors))
	}
	seen := make(map[[3]uint32]bool)
	for _, c := range colors {
		r, g, b, _ := c.RGBA()
		key := [3]uint32{r, g, b}
		if seen[key] {
			t.Fatal("palette colors are not distinct")
		}
		seen[key] = true
	}
}
