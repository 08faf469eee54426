// Package report ranks scored rows and renders the dataset summary shown to
// analysts and fed to the narrative layer.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"

	"github.com/finsight-labs/riskscan/pkg/features"
	"github.com/finsight-labs/riskscan/pkg/table"
)

// ScoreField is the key under which the anomaly score is attached to each
// anomaly record.
const ScoreField = "_anomaly_score"

// summaryColumns are summarized in this fixed order when present.
var summaryColumns = []string{"country", "channel", "merchant_category", "currency"}

var printer = message.NewPrinter(language.English)

// TopN returns the maxRows highest-scoring rows as anomaly records, ordered
// by score descending. Ties keep original row order. Each record is a copy
// of the input row with ScoreField added; NaN cells are normalized to nil so
// JSON output carries explicit nulls.
func TopN(t *table.Table, scores []float64, maxRows int) []table.Row {
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	if maxRows > len(idx) {
		maxRows = len(idx)
	}

	out := make([]table.Row, 0, maxRows)
	for _, i := range idx[:maxRows] {
		row := make(table.Row, len(t.Rows[i])+1)
		for k, v := range t.Rows[i] {
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				v = nil
			}
			row[k] = v
		}
		row[ScoreField] = scores[i]
		out = append(out, row)
	}
	return out
}

// Summarize renders the dataset summary: row/column counts, amount
// distribution when a literal amount column holds numbers, and the top-3
// values of each recognized categorical column. Fragments that do not apply
// are omitted entirely.
func Summarize(t *table.Table) string {
	parts := []string{fmt.Sprintf("Rows=%d, Columns=%d.", t.NumRows(), t.NumCols())}

	if stats, ok := amountStats(t); ok {
		parts = append(parts, stats)
	}

	for _, col := range summaryColumns {
		if !t.HasColumn(col) {
			continue
		}
		if top := topValues(t.Column(col), 3); top != "" {
			parts = append(parts, fmt.Sprintf("Top %s: %s.", col, top))
		}
	}

	return strings.Join(parts, " ")
}

func amountStats(t *table.Table) (string, bool) {
	if !t.HasColumn("amount") {
		return "", false
	}

	var vals []float64
	for _, v := range t.Column("amount") {
		if f, ok := table.Numeric(v); ok {
			vals = append(vals, f)
		}
	}
	if len(vals) == 0 {
		return "", false
	}

	return printer.Sprintf("Amount: min=%.2f, median=%.2f, max=%.2f.",
		floats.Min(vals), features.Median(vals), floats.Max(vals)), true
}

// topValues counts stringified non-missing cells and renders the k most
// frequent as "v1(c1), v2(c2), ...". Ties keep first-encountered order.
func topValues(values []table.Value, k int) string {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		if v == nil {
			continue
		}
		s := table.String(v)
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	if len(order) == 0 {
		return ""
	}

	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}

	rendered := make([]string, k)
	for i, s := range order[:k] {
		rendered[i] = fmt.Sprintf("%s(%d)", s, counts[s])
	}
	return strings.Join(rendered, ", ")
}
