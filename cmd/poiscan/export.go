package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/poiscan/internal/engine/storage"
)

func runExport(args []string) error {
	var dbPath, outputPath, format string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "", "Path to .db file (required)")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&format, "format", "csv", "Export format: csv")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: poiscan export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  poiscan export -db ./projects/poiscan_20260827.db\n")
		fmt.Fprintf(os.Stderr, "  poiscan export -db results.db -output results.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dbPath == "" {
		return fmt.Errorf("-db is required")
	}

	if format != "csv" {
		return fmt.Errorf("unsupported format: %s (only csv supported)", format)
	}

	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		outputPath = filepath.Join(dir, base+".csv")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer store.Close()

	places, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("loading db: %w", err)
	}
	if len(places) == 0 {
		return fmt.Errorf("no places found in database")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"place_id", "name", "category", "rating", "review_count",
		"lat", "lng", "weekday_hours", "maps_url", "group",
	})

	for _, p := range places {
		w.Write([]string{
			p.ID,
			p.Name,
			p.Category,
			fmt.Sprintf("%.1f", p.Rating),
			fmt.Sprintf("%d", p.ReviewCount),
			fmt.Sprintf("%.6f", p.Lat),
			fmt.Sprintf("%.6f", p.Lng),
			strings.Join(p.WeekdayHours, " | "),
			p.MapsURL,
			p.Group,
		})
	}

	fmt.Fprintf(os.Stderr, "Exported %d places to %s\n", len(places), outputPath)
	return nil
}
