// Package features derives the fixed numeric feature matrix fed to the
// outlier detector. The builder tolerates arbitrary input schemas: every
// recognized column is optional and absence degrades to a sentinel or an
// imputed value, never an error.
package features

import (
	"sort"
	"time"

	"github.com/finsight-labs/riskscan/pkg/table"
)

// Names lists the feature columns in matrix order.
var Names = []string{
	"amount_num",
	"hour",
	"channel_code",
	"country_code",
	"merchant_category_code",
	"currency_code",
}

// timestampCandidates are tried in priority order, case-insensitively.
var timestampCandidates = []string{"timestamp", "date", "datetime", "transaction_date", "created_at"}

// categoricalColumns are matched case-sensitively.
var categoricalColumns = []string{"channel", "country", "merchant_category", "currency"}

var defaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Builder turns a raw table into the feature matrix. A Builder is stateless
// across calls; category codecs and medians are recomputed per table.
type Builder struct {
	amountSynonyms []string
	timeLayouts    []string
}

// Option configures a Builder.
type Option func(*Builder)

// WithAmountSynonyms sets additional localized substrings recognized as
// amount column names, on top of "amount" itself.
func WithAmountSynonyms(synonyms ...string) Option {
	return func(b *Builder) {
		b.amountSynonyms = synonyms
	}
}

// WithTimeLayouts sets the layouts attempted when parsing timestamp cells.
func WithTimeLayouts(layouts ...string) Option {
	return func(b *Builder) {
		b.timeLayouts = layouts
	}
}

// New creates a Builder with the given options.
func New(opts ...Option) *Builder {
	b := &Builder{
		amountSynonyms: []string{"montant"},
		timeLayouts:    defaultTimeLayouts,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build produces one feature row per input row, with columns in Names order.
// Every cell is a concrete float: missing amounts are imputed with the
// batch median (0.0 when the whole column is missing), missing hours and
// categories get the -1 sentinel.
func (b *Builder) Build(t *table.Table) [][]float64 {
	n := len(t.Rows)

	cols := [][]float64{
		b.amountFeature(t),
		b.hourFeature(t),
	}
	for _, name := range categoricalColumns {
		cols = append(cols, categoryCodes(t, name))
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = col[i]
		}
		matrix[i] = row
	}
	return matrix
}

// amountFeature coerces the amount column to numeric and imputes missing
// cells with the median of the present ones. The literal "amount" column
// wins; otherwise the first column containing "amount" or a configured
// synonym is used.
func (b *Builder) amountFeature(t *table.Table) []float64 {
	col := "amount"
	if !t.HasColumn(col) {
		substrings := append([]string{"amount"}, b.amountSynonyms...)
		var ok bool
		col, ok = table.ResolveContains(t, substrings)
		if !ok {
			return make([]float64, len(t.Rows))
		}
	}

	out := make([]float64, len(t.Rows))
	missing := make([]bool, len(t.Rows))
	var present []float64
	for i, v := range t.Column(col) {
		f, ok := table.Numeric(v)
		if !ok {
			missing[i] = true
			continue
		}
		out[i] = f
		present = append(present, f)
	}

	fill := 0.0
	if len(present) > 0 {
		fill = Median(present)
	}
	for i, miss := range missing {
		if miss {
			out[i] = fill
		}
	}
	return out
}

// hourFeature extracts hour-of-day from the first recognized timestamp
// column. Unparseable or missing timestamps, or no such column at all,
// yield -1.
func (b *Builder) hourFeature(t *table.Table) []float64 {
	out := make([]float64, len(t.Rows))
	col, ok := table.Resolve(t, timestampCandidates)
	if !ok {
		for i := range out {
			out[i] = -1
		}
		return out
	}

	for i, v := range t.Column(col) {
		out[i] = -1
		switch x := v.(type) {
		case time.Time:
			out[i] = float64(x.Hour())
		case string:
			for _, layout := range b.timeLayouts {
				if ts, err := time.Parse(layout, x); err == nil {
					out[i] = float64(ts.Hour())
					break
				}
			}
		}
	}
	return out
}

// categoryCodes assigns sequential integer codes to the sorted distinct
// values of a column. Missing cells get -1, as does every row when the
// column is absent. Codes are meaningful only within the current table.
func categoryCodes(t *table.Table, name string) []float64 {
	out := make([]float64, len(t.Rows))
	if !t.HasColumn(name) {
		for i := range out {
			out[i] = -1
		}
		return out
	}

	values := t.Column(name)
	distinct := make(map[string]struct{})
	for _, v := range values {
		if v == nil {
			continue
		}
		distinct[table.String(v)] = struct{}{}
	}

	sorted := make([]string, 0, len(distinct))
	for s := range distinct {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	codes := make(map[string]float64, len(sorted))
	for i, s := range sorted {
		codes[s] = float64(i)
	}

	for i, v := range values {
		if v == nil {
			out[i] = -1
			continue
		}
		out[i] = codes[table.String(v)]
	}
	return out
}

// Median computes the sample median, averaging the two middle values for
// even-sized inputs. Imputation and the dataset summary share this so both
// report the same statistic.
func Median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
