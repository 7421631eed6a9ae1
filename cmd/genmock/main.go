// Command genmock reads a NASA FIRMS area CSV export and generates mock data
// fixtures for the dashboard test suites. It runs the records through the real
// refresh pipeline so the processed fixture matches what the service serves.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv data/raw/fused_latest_raw.csv \
//	  -raw-out data/mock/viirs_raw_records.json \
//	  -processed-out data/mock/viirs_snapshot.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/firms"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "FIRMS area CSV export")
	rawOut := flag.String("raw-out", "", "output path for raw record JSON fixture")
	processedOut := flag.String("processed-out", "", "output path for processed snapshot JSON fixture")
	limit := flag.Int("limit", 0, "keep only the newest N records (0 keeps all)")
	flag.Parse()

	if *csvPath == "" || *rawOut == "" || *processedOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -raw-out, -processed-out")
	}

	// Set a fixed clock for reproducible RefreshedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2025, time.August, 15, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	records, err := readCSV(*csvPath, logger)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}
	log.Printf("parsed %d records", len(records))

	entities := store.New()
	p := pipeline.New(entities, logger, observability.NewMetricsForTesting())
	defer p.Close()

	res, err := p.Refresh(context.Background(), func(context.Context) ([]domain.RawFireRecord, error) {
		return records, nil
	})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	log.Printf("processed: %d detections, %d dropped, %d collapsed", len(res.Detections), res.Dropped, res.Collapsed)

	if err := writeJSON(*rawOut, records); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s", *rawOut)

	snap := entities.Snapshot()
	if err := writeJSON(*processedOut, snap); err != nil {
		return fmt.Errorf("writing processed fixture: %w", err)
	}
	log.Printf("wrote processed fixture: %s", *processedOut)

	printStats(snap)
	return nil
}

func readCSV(path string, logger *slog.Logger) ([]domain.RawFireRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return firms.ParseCSV(f, logger)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(snap domain.Snapshot) {
	printSummary(os.Stdout, snap)
	printTopCells(os.Stdout, snap.Detections, 5)
}

func printSummary(w io.Writer, snap domain.Snapshot) {
	stats := domain.Summarize(snap.Detections)

	fmt.Fprintln(w, "\n=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Total: %d (dropped %d, collapsed %d)\n", stats.Total, snap.Dropped, snap.Collapsed)
	fmt.Fprintf(w, "By severity: low=%d, medium=%d, high=%d, extreme=%d\n",
		stats.BySeverity[domain.SeverityLow], stats.BySeverity[domain.SeverityMedium],
		stats.BySeverity[domain.SeverityHigh], stats.BySeverity[domain.SeverityExtreme])
	fmt.Fprintf(w, "Last 24h: %d\n", stats.Recent24h)
	fmt.Fprintf(w, "FRP: max=%.1f mean=%.2f\n", stats.MaxPower, stats.MeanPower)
	if stats.Earliest != nil && stats.Latest != nil {
		fmt.Fprintf(w, "Range: %s .. %s\n", stats.Earliest.Format(time.RFC3339), stats.Latest.Format(time.RFC3339))
	}

	dayNight := map[string]int{}
	confidence := map[string]int{}
	for i := range snap.Detections {
		dayNight[snap.Detections[i].DayNight]++
		confidence[snap.Detections[i].Confidence]++
	}
	fmt.Fprintf(w, "Day/night: D=%d N=%d\n", dayNight["D"], dayNight["N"])
	fmt.Fprintf(w, "Confidence: l=%d n=%d h=%d\n", confidence["l"], confidence["n"], confidence["h"])
}

func printTopCells(w io.Writer, detections []domain.FireDetection, n int) {
	top := make([]domain.FireDetection, len(detections))
	copy(top, detections)
	sort.Slice(top, func(i, j int) bool { return top[i].RadiativePower > top[j].RadiativePower })

	fmt.Fprintf(w, "\nTop %d cells by FRP:\n", min(n, len(top)))
	for _, d := range top[:min(n, len(top))] {
		fmt.Fprintf(w, "  %s %.1f MW %s (%.4f, %.4f) %s\n",
			d.CellID, d.RadiativePower, d.Severity, d.Geo.Lat, d.Geo.Lon, d.ObservedAt.Format(time.RFC3339))
	}
}
