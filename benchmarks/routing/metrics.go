// ABOUTME: Accuracy, per-label precision and recall, and confusion counts for routing runs
// ABOUTME: Pure computation over (expected, predicted) pairs

package routing

import (
	"github.com/harper/twin/internal/models"
)

// LabelMetrics holds the scores for a single label
type LabelMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics summarizes a set of predictions
type Metrics struct {
	Total     int                                   `json:"total"`
	Correct   int                                   `json:"correct"`
	Accuracy  float64                               `json:"accuracy"`
	PerLabel  map[models.Label]LabelMetrics         `json:"per_label"`
	Confusion map[models.Label]map[models.Label]int `json:"confusion"`
}

// Prediction pairs an expected label with the router's choice
type Prediction struct {
	Expected  models.Label
	Predicted models.Label
}

// Compute scores predictions. Labels with no predictions and no support get
// zero scores; an empty input yields zero accuracy.
func Compute(preds []Prediction) Metrics {
	m := Metrics{
		Total:     len(preds),
		PerLabel:  make(map[models.Label]LabelMetrics, len(models.Labels)),
		Confusion: make(map[models.Label]map[models.Label]int, len(models.Labels)),
	}

	truePos := make(map[models.Label]int)
	predicted := make(map[models.Label]int)
	support := make(map[models.Label]int)

	for _, p := range preds {
		support[p.Expected]++
		predicted[p.Predicted]++
		if p.Expected == p.Predicted {
			truePos[p.Expected]++
			m.Correct++
		}
		row, ok := m.Confusion[p.Expected]
		if !ok {
			row = make(map[models.Label]int)
			m.Confusion[p.Expected] = row
		}
		row[p.Predicted]++
	}

	if m.Total > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Total)
	}

	for _, label := range models.Labels {
		lm := LabelMetrics{Support: support[label]}
		if predicted[label] > 0 {
			lm.Precision = float64(truePos[label]) / float64(predicted[label])
		}
		if support[label] > 0 {
			lm.Recall = float64(truePos[label]) / float64(support[label])
		}
		if lm.Precision+lm.Recall > 0 {
			lm.F1 = 2 * lm.Precision * lm.Recall / (lm.Precision + lm.Recall)
		}
		m.PerLabel[label] = lm
	}

	return m
}
