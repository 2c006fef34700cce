package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/poiscan/internal/config"
	"github.com/rendis/poiscan/internal/engine/geo"
	"github.com/rendis/poiscan/internal/engine/provider"
	"github.com/rendis/poiscan/internal/engine/search"
	"github.com/rendis/poiscan/internal/engine/storage"
	"github.com/rendis/poiscan/internal/model"
	"github.com/rendis/poiscan/internal/tui"
)

func runSearch(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var params model.SearchParams
	var groupsStr, openOn, outputDir, apiKey string
	var useTUI bool
	var radiusKm float64

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	fs.StringVar(&outputDir, "output", "", "Output directory for project files (required)")
	fs.StringVar(&params.Place, "place", "", "Place name to geocode as search center")
	fs.Float64Var(&params.Lat, "lat", 0, "Center latitude")
	fs.Float64Var(&params.Lng, "lng", 0, "Center longitude")
	fs.Float64Var(&radiusKm, "radius", 3, "Search radius in km")
	fs.StringVar(&groupsStr, "groups", "", "Category groups: comma joins tags in a group, semicolon separates groups (required)")
	fs.Float64Var(&params.MinRating, "min-rating", 0, "Minimum star rating filter")
	fs.IntVar(&params.MinReviews, "min-reviews", 0, "Minimum review count filter")
	fs.StringVar(&openOn, "open-on", "", "Keep only places open on this weekday (e.g. Saturday)")
	fs.StringVar(&apiKey, "api-key", cfg.APIKey, "Provider API key (or POISCAN_API_KEY)")
	fs.IntVar(&cfg.MaxAPICalls, "max-calls", cfg.MaxAPICalls, "Provider call budget per category group")
	fs.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "Subdivision depth ceiling")
	fs.Float64Var(&cfg.MinTileRadius, "min-tile-radius", cfg.MinTileRadius, "Tile radius floor in meters")
	fs.Float64Var(&cfg.OverlapFactor, "overlap", cfg.OverlapFactor, "Child tile offset factor in (0,1]")
	fs.DurationVar(&cfg.APITimeout, "timeout", cfg.APITimeout, "Per-call timeout")
	fs.Float64Var(&cfg.QPS, "qps", cfg.QPS, "Max provider requests per second")
	fs.BoolVar(&useTUI, "tui", false, "Show live progress UI")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: poiscan search [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  poiscan search -groups restaurant -lat 32.0853 -lng 34.7818 -radius 15 -output ./projects\n")
		fmt.Fprintf(os.Stderr, "  poiscan search -groups \"restaurant;cafe,coffee_shop\" -place \"Tel Aviv\" -min-rating 4 -output ./projects\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Validation
	if groupsStr == "" {
		return fmt.Errorf("-groups is required")
	}
	if outputDir == "" {
		return fmt.Errorf("-output is required")
	}
	if params.Place == "" && !params.IsCoordMode() {
		return fmt.Errorf("either -place or -lat/-lng is required")
	}
	if apiKey == "" {
		return fmt.Errorf("provider API key is required (-api-key or POISCAN_API_KEY)")
	}

	groups := parseGroups(groupsStr)
	if len(groups) == 0 {
		return fmt.Errorf("no valid category groups in %q", groupsStr)
	}
	params.Groups = groups
	params.RadiusM = radiusKm * 1000

	// Resolve center
	if !params.IsCoordMode() {
		lat, lng, err := geo.GeocodePlace(params.Place)
		if err != nil {
			return fmt.Errorf("geocoding %q: %w", params.Place, err)
		}
		params.Lat, params.Lng = lat, lng
		fmt.Fprintf(os.Stderr, "Geocoded %q to %.4f, %.4f\n", params.Place, lat, lng)
	}

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	ts := time.Now().Format("20060102_150405")
	baseName := fmt.Sprintf("poiscan_%s", ts)
	params.DBPath = filepath.Join(outputDir, baseName+".db")
	logPath := filepath.Join(outputDir, baseName+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.LstdFlags)
	logger.Printf("=== Session start: groups=%s lat=%.4f lng=%.4f radius=%.0fm max_calls=%d max_depth=%d overlap=%.2f ===",
		groupsStr, params.Lat, params.Lng, params.RadiusM, cfg.MaxAPICalls, cfg.MaxDepth, cfg.OverlapFactor)

	fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	store, err := storage.NewStore(params.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	client := provider.NewPlacesClient(apiKey, cfg.ProviderCapacity, cfg.QPS)

	stats := &search.Stats{}
	engine := &search.Engine{
		Provider: client,
		Opts: search.Options{
			MinTileRadius: cfg.MinTileRadius,
			MaxDepth:      cfg.MaxDepth,
			OverlapFactor: cfg.OverlapFactor,
			MaxCalls:      cfg.MaxAPICalls,
			Timeout:       cfg.APITimeout,
		},
		Logger: logger,
		Stats:  stats,
		OnPlaces: func(places []model.Place) {
			if _, err := store.InsertBatch(places); err != nil {
				logger.Printf("STORE error: %v", err)
			}
		},
	}

	filters := search.Filters{
		MinRating:  params.MinRating,
		MinReviews: params.MinReviews,
	}
	if openOn != "" {
		filters.OpenPredicate = search.OpenOnDay(openOn)
	}

	startTime := time.Now()
	totalBudget := cfg.MaxAPICalls * len(groups)

	var res search.Result
	var runErr error
	if useTUI {
		res, runErr = tui.Run(tui.RunOptions{
			Title:       fmt.Sprintf("Searching %s around %.4f, %.4f", groupsStr, params.Lat, params.Lng),
			Stats:       stats,
			TotalBudget: totalBudget,
			Search: func(ctx context.Context) (search.Result, error) {
				return engine.Search(ctx, params.Lat, params.Lng, params.RadiusM, groups, filters)
			},
		})
	} else {
		done := make(chan struct{})
		go reportProgress(stats, totalBudget, startTime, done)
		res, runErr = engine.Search(ctx, params.Lat, params.Lng, params.RadiusM, groups, filters)
		close(done)
	}
	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("searching: %w", runErr)
	}

	duration := time.Since(startTime).Truncate(time.Second)
	stored, _ := store.Count()

	logger.Printf("Done: api_calls=%d failed=%d unique_before=%d unique_after=%d stored=%d",
		res.Metrics.APICalls, res.Metrics.FailedCalls,
		res.Metrics.UniqueBeforeFilter, res.Metrics.UniqueAfterFilter, stored)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  PoiScan Complete\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Groups:     %s\n", groupsStr)
	fmt.Fprintf(os.Stderr, "  Center:     %.4f, %.4f (r=%.1fkm)\n", params.Lat, params.Lng, params.RadiusM/1000)
	fmt.Fprintf(os.Stderr, "  API calls:  %d / %d budget\n", res.Metrics.APICalls, totalBudget)
	fmt.Fprintf(os.Stderr, "  Failed:     %d\n", res.Metrics.FailedCalls)
	fmt.Fprintf(os.Stderr, "  Unique:     %d found, %d after filters\n",
		res.Metrics.UniqueBeforeFilter, res.Metrics.UniqueAfterFilter)
	fmt.Fprintf(os.Stderr, "  Stored:     %d\n", stored)
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", duration)
	fmt.Fprintf(os.Stderr, "  Database:   %s\n", params.DBPath)
	fmt.Fprintf(os.Stderr, "  Log:        %s\n", logPath)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	if res.Metrics.APICalls >= totalBudget {
		fmt.Fprintf(os.Stderr, "  [!] Budget exhausted: coverage may be partial. Retry with a larger -max-calls.\n")
	}

	return nil
}

func reportProgress(stats *search.Stats, totalBudget int, startTime time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(startTime).Truncate(time.Second)
			fmt.Fprintf(os.Stderr, "\r[%d/%d calls] %d tiles split | %d places | %d failed | %s",
				stats.TilesSearched.Load(), totalBudget, stats.TilesSplit.Load(),
				stats.PlacesFound.Load(), stats.FailedCalls.Load(), elapsed)
		case <-done:
			fmt.Fprintln(os.Stderr)
			return
		}
	}
}

// parseGroups turns "restaurant;cafe,coffee_shop" into two category groups.
func parseGroups(s string) []model.CategoryGroup {
	var groups []model.CategoryGroup
	for _, part := range strings.Split(s, ";") {
		var tags []string
		for _, t := range strings.Split(part, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) == 0 {
			continue
		}
		groups = append(groups, model.CategoryGroup{
			Label: strings.Join(tags, "+"),
			Tags:  tags,
		})
	}
	return groups
}
