// ABOUTME: Command-line benchmark runner for message routing accuracy
// ABOUTME: Runs labelled suites through the router and outputs JSON results

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/harper/twin/benchmarks/routing"
	"github.com/harper/twin/internal/app"
	"github.com/harper/twin/internal/config"
	"github.com/harper/twin/internal/logging"
	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/router"
)

func main() {
	suiteID := flag.String("suite", "", fmt.Sprintf("Run a specific suite (%s). If empty, runs all suites.", strings.Join(routing.SuiteIDs(), ", ")))
	outputPath := flag.String("output", "routing_results.json", "Output path for JSON results")
	keywordsOnly := flag.Bool("keywords", false, "Route with the keyword classifier only, without a model backend")
	concurrency := flag.Int("concurrency", routing.DefaultConcurrency, "Maximum concurrent classifications")
	minAccuracy := flag.Float64("min-accuracy", 0, "Exit non-zero when overall accuracy falls below this value")
	verbose := flag.Bool("verbose", false, "Print every misrouted query")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.Setup(level, true)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found, continuing")
	}

	ctx := context.Background()

	mode := "keyword"
	r := router.New(nil)
	if !*keywordsOnly {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}
		if cfg.APIKey() == "" {
			log.Fatal().Str("provider", cfg.Provider).Msg("an API key is required for model routing; pass -keywords to benchmark the fallback")
		}
		r = app.NewRouter(ctx, cfg)
		mode = "model:" + cfg.Provider
	}

	var suites []routing.Suite
	if *suiteID == "" {
		for _, id := range routing.SuiteIDs() {
			s, _ := routing.Lookup(id)
			suites = append(suites, s)
		}
	} else {
		s, err := routing.Lookup(*suiteID)
		if err != nil {
			log.Fatal().Err(err).Msg("unknown suite")
		}
		suites = []routing.Suite{s}
	}

	fmt.Println("========================================")
	fmt.Printf("Twin Routing Benchmark (%s)\n", mode)
	fmt.Println("========================================")

	results, err := routing.NewRunner(r, *concurrency).RunAll(ctx, suites)
	if err != nil {
		log.Fatal().Err(err).Msg("benchmark failed")
	}

	for _, res := range results {
		fmt.Printf("\n%s: %s\n", res.SuiteID, res.SuiteName)
		fmt.Printf("  Accuracy: %.2f (%d/%d)\n", res.Metrics.Accuracy, res.Metrics.Correct, res.Metrics.Total)
		fmt.Printf("  Duration: %s\n", res.Duration)
		if *verbose {
			for _, miss := range res.Misses() {
				fmt.Printf("  MISS %q: want %s, got %s (%.2f)\n", miss.Query, miss.Expected, miss.Predicted, miss.Confidence)
			}
		}
	}

	report := routing.NewReport(mode, results)

	fmt.Println("\n========================================")
	fmt.Printf("Total Queries: %d\n", report.Overall.Total)
	fmt.Printf("Correct: %d\n", report.Overall.Correct)
	fmt.Printf("Accuracy: %.2f\n", report.Overall.Accuracy)
	for _, label := range models.Labels {
		lm := report.Overall.PerLabel[label]
		fmt.Printf("  %-14s precision %.2f  recall %.2f  support %d\n", label, lm.Precision, lm.Recall, lm.Support)
	}
	fmt.Println("========================================")

	if err := routing.ExportReport(report, *outputPath); err != nil {
		log.Fatal().Err(err).Msg("failed to export results")
	}
	fmt.Printf("Results exported to: %s\n", *outputPath)

	if report.Overall.Accuracy < *minAccuracy {
		os.Exit(1)
	}
}
