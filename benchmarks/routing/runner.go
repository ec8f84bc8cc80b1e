// ABOUTME: Runs routing suites against a router and exports the scored results
// ABOUTME: Queries are classified concurrently with a bounded errgroup

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harper/twin/internal/models"
)

// DefaultConcurrency bounds the number of in-flight classifications
const DefaultConcurrency = 4

// Router is the routing surface under test
type Router interface {
	Route(ctx context.Context, text string) models.Classification
}

// Outcome is the router's answer for one case
type Outcome struct {
	Case
	Predicted  models.Label                `json:"predicted"`
	Confidence float64                     `json:"confidence"`
	Source     models.ClassificationSource `json:"source"`
	Rationale  string                      `json:"rationale"`
	Correct    bool                        `json:"correct"`
}

// SuiteResult is the scored outcome of one suite
type SuiteResult struct {
	SuiteID   string        `json:"suite_id"`
	SuiteName string        `json:"suite_name"`
	Metrics   Metrics       `json:"metrics"`
	Outcomes  []Outcome     `json:"outcomes"`
	Duration  time.Duration `json:"duration_ns"`
}

// Misses returns the outcomes the router got wrong
func (r SuiteResult) Misses() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Correct {
			out = append(out, o)
		}
	}
	return out
}

// Runner executes suites against a router
type Runner struct {
	router      Router
	concurrency int
}

// NewRunner creates a runner. Concurrency below one uses DefaultConcurrency.
func NewRunner(router Router, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{router: router, concurrency: concurrency}
}

// Run classifies every case in the suite. Outcomes keep the suite's order.
func (r *Runner) Run(ctx context.Context, suite Suite) (SuiteResult, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(suite.Cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range suite.Cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cls := r.router.Route(gctx, c.Query)
			outcomes[i] = Outcome{
				Case:       c,
				Predicted:  cls.Label,
				Confidence: cls.Confidence,
				Source:     cls.Source,
				Rationale:  cls.Rationale,
				Correct:    cls.Label == c.Expected,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SuiteResult{}, fmt.Errorf("suite %s: %w", suite.ID, err)
	}

	preds := make([]Prediction, len(outcomes))
	for i, o := range outcomes {
		preds[i] = Prediction{Expected: o.Expected, Predicted: o.Predicted}
	}

	return SuiteResult{
		SuiteID:   suite.ID,
		SuiteName: suite.Name,
		Metrics:   Compute(preds),
		Outcomes:  outcomes,
		Duration:  time.Since(start),
	}, nil
}

// RunAll runs the suites in order and stops at the first error
func (r *Runner) RunAll(ctx context.Context, suites []Suite) ([]SuiteResult, error) {
	results := make([]SuiteResult, 0, len(suites))
	for _, s := range suites {
		res, err := r.Run(ctx, s)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Report is the exported form of a benchmark run
type Report struct {
	Timestamp string        `json:"timestamp"`
	Mode      string        `json:"mode"`
	Overall   Metrics       `json:"overall"`
	Suites    []SuiteResult `json:"suites"`
}

// NewReport aggregates suite results into a report
func NewReport(mode string, results []SuiteResult) Report {
	var preds []Prediction
	for _, res := range results {
		for _, o := range res.Outcomes {
			preds = append(preds, Prediction{Expected: o.Expected, Predicted: o.Predicted})
		}
	}
	return Report{
		Timestamp: time.Now().Format(time.RFC3339),
		Mode:      mode,
		Overall:   Compute(preds),
		Suites:    results,
	}
}

// ExportReport writes the report as indented JSON
func ExportReport(report Report, outputPath string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}
