// Package pipeline composes feature building, outlier scoring, and ranking
// into the single entry point callers use to analyze a transaction table.
package pipeline

import (
	"github.com/finsight-labs/riskscan/pkg/detectors"
	"github.com/finsight-labs/riskscan/pkg/detectors/iforest"
	"github.com/finsight-labs/riskscan/pkg/features"
	"github.com/finsight-labs/riskscan/pkg/report"
	"github.com/finsight-labs/riskscan/pkg/table"
)

// DefaultMaxRows caps how many anomaly records Analyze returns when the
// caller passes a non-positive maxRows.
const DefaultMaxRows = 12

// EmptySummary is the dataset summary returned for a zero-row table.
const EmptySummary = "Empty dataset."

// Meta describes the shape of the analyzed table.
type Meta struct {
	NRows int `json:"n_rows"`
	NCols int `json:"n_cols"`
}

// Result is the pack returned to every caller: table shape, the textual
// dataset summary, and the top-scoring rows in descending score order.
type Result struct {
	Meta           Meta        `json:"meta"`
	DatasetSummary string      `json:"dataset_summary"`
	Anomalies      []table.Row `json:"anomalies"`
}

// Pipeline analyzes transaction tables. It holds configuration only; a fresh
// detector is fitted per call, so one Pipeline is safe for concurrent use
// and no model state leaks between requests.
type Pipeline struct {
	builder     *features.Builder
	newDetector func() detectors.Detector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBuilder replaces the default feature builder.
func WithBuilder(b *features.Builder) Option {
	return func(p *Pipeline) {
		p.builder = b
	}
}

// WithDetector sets the factory invoked once per Analyze call to obtain a
// fresh detector.
func WithDetector(factory func() detectors.Detector) Option {
	return func(p *Pipeline) {
		p.newDetector = factory
	}
}

// New creates a Pipeline. The default detector is an Isolation Forest with
// 200 trees and a fixed seed, so identical inputs rank identically across
// calls.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		builder: features.New(),
		newDetector: func() detectors.Detector {
			cfg := detectors.DefaultConfig()
			return iforest.New(
				iforest.WithTrees(200),
				iforest.WithContamination(cfg.Contamination),
				iforest.WithSeed(cfg.RandomSeed),
			)
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Analyze scores every row of t and returns the result pack. A nil or
// zero-row table short-circuits to the empty pack without fitting anything.
// Detector failures propagate unmodified; there is no partial result.
func (p *Pipeline) Analyze(t *table.Table, maxRows int) (*Result, error) {
	if t == nil || t.NumRows() == 0 {
		return &Result{DatasetSummary: EmptySummary, Anomalies: []table.Row{}}, nil
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	matrix := p.builder.Build(t)

	scores, err := p.newDetector().FitPredict(matrix)
	if err != nil {
		return nil, err
	}

	return &Result{
		Meta:           Meta{NRows: t.NumRows(), NCols: t.NumCols()},
		DatasetSummary: report.Summarize(t),
		Anomalies:      report.TopN(t, scores, maxRows),
	}, nil
}

// Analyze runs a default Pipeline over t.
func Analyze(t *table.Table, maxRows int) (*Result, error) {
	return New().Analyze(t, maxRows)
}
