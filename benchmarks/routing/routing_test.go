// ABOUTME: Tests for routing benchmark metrics, suites and the concurrent runner
// ABOUTME: Keyword routing must score perfectly on the trigger and tie-break suites

package routing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/twin/internal/models"
	"github.com/harper/twin/internal/router"
)

func TestCompute(t *testing.T) {
	m := Compute([]Prediction{
		{Expected: models.LabelProfessional, Predicted: models.LabelProfessional},
		{Expected: models.LabelProfessional, Predicted: models.LabelGeneral},
		{Expected: models.LabelGeneral, Predicted: models.LabelGeneral},
		{Expected: models.LabelDecision, Predicted: models.LabelProfessional},
	})

	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 2, m.Correct)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)

	prof := m.PerLabel[models.LabelProfessional]
	assert.InDelta(t, 0.5, prof.Precision, 1e-9)
	assert.InDelta(t, 0.5, prof.Recall, 1e-9)
	assert.InDelta(t, 0.5, prof.F1, 1e-9)
	assert.Equal(t, 2, prof.Support)

	general := m.PerLabel[models.LabelGeneral]
	assert.InDelta(t, 0.5, general.Precision, 1e-9)
	assert.InDelta(t, 1.0, general.Recall, 1e-9)

	decision := m.PerLabel[models.LabelDecision]
	assert.Zero(t, decision.Precision)
	assert.Zero(t, decision.Recall)
	assert.Zero(t, decision.F1)

	wantConfusion := map[models.Label]map[models.Label]int{
		models.LabelProfessional: {models.LabelProfessional: 1, models.LabelGeneral: 1},
		models.LabelGeneral:      {models.LabelGeneral: 1},
		models.LabelDecision:     {models.LabelProfessional: 1},
	}
	if diff := cmp.Diff(wantConfusion, m.Confusion); diff != "" {
		t.Errorf("Confusion mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(nil)
	if m.Accuracy != 0 {
		t.Errorf("Compute(nil).Accuracy = %v, want 0", m.Accuracy)
	}
	if len(m.PerLabel) != len(models.Labels) {
		t.Errorf("len(PerLabel) = %d, want %d", len(m.PerLabel), len(models.Labels))
	}
}

func TestSuites_WellFormed(t *testing.T) {
	for _, id := range SuiteIDs() {
		s, err := Lookup(id)
		require.NoError(t, err)
		assert.NotEmpty(t, s.Cases, id)
		for _, c := range s.Cases {
			assert.True(t, c.Expected.IsValid(), "%s: %q has invalid label %q", id, c.Query, c.Expected)
			assert.NotEmpty(t, c.Query)
		}
	}

	_, err := Lookup("nope")
	assert.Error(t, err)
}

func TestRunner_KeywordRoutingIsExactOnTriggerSuites(t *testing.T) {
	runner := NewRunner(router.New(nil), 3)

	for _, suite := range []Suite{Keywords(), Ambiguous()} {
		res, err := runner.Run(context.Background(), suite)
		require.NoError(t, err)
		assert.Empty(t, res.Misses(), suite.ID)
		assert.InDelta(t, 1.0, res.Metrics.Accuracy, 1e-9, suite.ID)
		for i, o := range res.Outcomes {
			assert.Equal(t, suite.Cases[i].Query, o.Query, "outcome order")
			assert.Equal(t, models.SourceKeyword, o.Source)
		}
	}
}

type fixedRouter models.Label

func (f fixedRouter) Route(context.Context, string) models.Classification {
	return models.Classification{Label: models.Label(f), Confidence: 0.9, Source: models.SourceModel}
}

func TestRunner_CountsMisses(t *testing.T) {
	suite := Keywords()
	res, err := NewRunner(fixedRouter(models.LabelGeneral), 0).Run(context.Background(), suite)
	require.NoError(t, err)

	generals := 0
	for _, c := range suite.Cases {
		if c.Expected == models.LabelGeneral {
			generals++
		}
	}
	assert.Equal(t, generals, res.Metrics.Correct)
	assert.Len(t, res.Misses(), len(suite.Cases)-generals)
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(router.New(nil), 1).Run(ctx, Keywords())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportReport(t *testing.T) {
	results, err := NewRunner(router.New(nil), 2).RunAll(context.Background(), []Suite{Keywords(), Paraphrases()})
	require.NoError(t, err)
	require.Len(t, results, 2)

	report := NewReport("keyword", results)
	total := len(Keywords().Cases) + len(Paraphrases().Cases)
	assert.Equal(t, total, report.Overall.Total)

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, ExportReport(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "keyword", decoded.Mode)
	assert.Equal(t, total, decoded.Overall.Total)
	assert.Len(t, decoded.Suites, 2)
}
