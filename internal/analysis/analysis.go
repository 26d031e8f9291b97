// Package analysis computes aggregate statistics over reconciliation history.
package analysis

import (
	"cmp"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/johnayoung/math-consensus/internal/consensus"
	"github.com/johnayoung/math-consensus/internal/history"
	"github.com/johnayoung/math-consensus/internal/provider"
)

// TrendWindow is the largest rolling window used for the success trend.
const TrendWindow = 10

// ComplexityLabels name the problem-length quartiles, shortest first.
var ComplexityLabels = []string{"Simple", "Moderate", "Complex", "Very Complex"}

// Share is the percentage of records carrying Label.
type Share struct {
	Label   string  `json:"label" yaml:"label"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// LengthStats summarizes response lengths, in characters, for one backend.
type LengthStats struct {
	Model  string  `json:"model" yaml:"model"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	Min    int     `json:"min" yaml:"min"`
	Max    int     `json:"max" yaml:"max"`
}

// Agreement is a square matrix of pairwise agreement rates. A nil cell
// means the pair never both produced an answer.
type Agreement struct {
	Models []string     `json:"models" yaml:"models"`
	Rates  [][]*float64 `json:"rates" yaml:"rates"`
}

// Rate returns the agreement between m1 and m2.
func (a Agreement) Rate(m1, m2 string) (float64, bool) {
	i, j := slices.Index(a.Models, m1), slices.Index(a.Models, m2)
	if i < 0 || j < 0 || a.Rates[i][j] == nil {
		return 0, false
	}
	return *a.Rates[i][j], true
}

// ComplexityBucket is one problem-length quartile.
type ComplexityBucket struct {
	Label             string  `json:"label" yaml:"label"`
	MinLength         int     `json:"min_length" yaml:"min_length"`
	MaxLength         int     `json:"max_length" yaml:"max_length"`
	Count             int     `json:"count" yaml:"count"`
	FullConsensusRate float64 `json:"full_consensus_rate" yaml:"full_consensus_rate"`
}

// TrendPoint is the rolling success rate ending at one record.
type TrendPoint struct {
	ID          string    `json:"id" yaml:"id"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	SuccessRate float64   `json:"success_rate" yaml:"success_rate"`
}

// Report holds every statistic computed over a history.
type Report struct {
	GeneratedAt            time.Time          `json:"generated_at" yaml:"generated_at"`
	Total                  int                `json:"total" yaml:"total"`
	OverallSuccessRate     float64            `json:"overall_success_rate" yaml:"overall_success_rate"`
	ConsensusRates         []Share            `json:"consensus_rates" yaml:"consensus_rates"`
	ConfidenceDistribution []Share            `json:"confidence_distribution" yaml:"confidence_distribution"`
	ModelAvailability      []Share            `json:"model_availability" yaml:"model_availability"`
	ErrorRates             []Share            `json:"error_rates" yaml:"error_rates"`
	ResponseLength         []LengthStats      `json:"response_length" yaml:"response_length"`
	Agreement              Agreement          `json:"model_agreement" yaml:"model_agreement"`
	Complexity             []ComplexityBucket `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	TrendWindow            int                `json:"trend_window" yaml:"trend_window"`
	Trend                  []TrendPoint       `json:"trend,omitempty" yaml:"trend,omitempty"`
	Observations           []string           `json:"observations" yaml:"observations"`
}

// Analyze computes a Report over records.
func Analyze(records []*history.Record, now time.Time) *Report {
	r := &Report{GeneratedAt: now, Total: len(records)}
	if len(records) == 0 {
		return r
	}

	models := modelsOf(records)

	r.ConsensusRates = shares(records, func(rec *history.Record) string { return string(rec.Consensus.Status) })
	r.ConfidenceDistribution = shares(records, func(rec *history.Record) string { return string(rec.Consensus.Confidence) })
	r.OverallSuccessRate = percent(count(records, succeeded), len(records))
	r.ModelAvailability = availability(records)
	r.ErrorRates, r.ResponseLength = perModel(records, models)
	r.Agreement = agreement(records, models)
	r.Complexity = complexity(records)
	r.TrendWindow, r.Trend = trend(records)
	r.Observations = observe(r)
	return r
}

func succeeded(rec *history.Record) bool {
	return rec.Consensus.Status.Agreed()
}

func count(records []*history.Record, keep func(*history.Record) bool) int {
	n := 0
	for _, rec := range records {
		if keep(rec) {
			n++
		}
	}
	return n
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// backendsOf returns the backends a record queried. Records without
// available_models fall back to the keys of their raw responses.
func backendsOf(rec *history.Record) []string {
	if len(rec.AvailableModels) > 0 {
		return rec.AvailableModels
	}
	return rec.RawResponses.Backends()
}

// modelsOf lists every backend queried at least once: roster backends in
// roster order, then any others in first-seen order.
func modelsOf(records []*history.Record) []string {
	seen := make(map[string]bool)
	var extra []string
	for _, rec := range records {
		for _, m := range backendsOf(rec) {
			if !seen[m] {
				seen[m] = true
				if !slices.Contains(provider.Roster, m) {
					extra = append(extra, m)
				}
			}
		}
	}

	var out []string
	for _, m := range provider.Roster {
		if seen[m] {
			out = append(out, m)
		}
	}
	return append(out, extra...)
}

// shares counts label values, skipping empty labels, and orders them by
// frequency then label.
func shares(records []*history.Record, label func(*history.Record) string) []Share {
	counts := make(map[string]int)
	for _, rec := range records {
		if l := label(rec); l != "" {
			counts[l]++
		}
	}

	out := make([]Share, 0, len(counts))
	for l, n := range counts {
		out = append(out, Share{Label: l, Percent: percent(n, len(records))})
	}
	slices.SortFunc(out, func(a, b Share) int {
		if c := cmp.Compare(b.Percent, a.Percent); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

func availability(records []*history.Record) []Share {
	out := make([]Share, 0, len(provider.Roster))
	for _, m := range provider.Roster {
		n := count(records, func(rec *history.Record) bool {
			return slices.Contains(backendsOf(rec), m)
		})
		out = append(out, Share{Label: m, Percent: percent(n, len(records))})
	}
	return out
}

// perModel computes error rates and response lengths over the records in
// which each model was queried.
func perModel(records []*history.Record, models []string) ([]Share, []LengthStats) {
	errorRates := make([]Share, 0, len(models))
	lengths := make([]LengthStats, 0, len(models))

	for _, m := range models {
		var (
			queried int
			failed  int
			sizes   []int
		)
		for _, rec := range records {
			if !slices.Contains(backendsOf(rec), m) {
				continue
			}
			queried++
			resp, _ := rec.RawResponses.Get(m)
			if consensus.IsErrorMarker(resp) {
				failed++
			}
			sizes = append(sizes, utf8.RuneCountInString(resp))
		}
		if queried == 0 {
			continue
		}
		errorRates = append(errorRates, Share{Label: m, Percent: percent(failed, queried)})
		lengths = append(lengths, lengthStats(m, sizes))
	}
	return errorRates, lengths
}

func lengthStats(model string, sizes []int) LengthStats {
	sorted := slices.Clone(sizes)
	slices.Sort(sorted)

	sum := 0
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	median := float64(sorted[n/2])
	if n%2 == 0 {
		median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}

	return LengthStats{
		Model:  model,
		Mean:   float64(sum) / float64(n),
		Median: median,
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

// agreement compares normalized extracted answers for every model pair,
// over the records where both models produced an answer.
func agreement(records []*history.Record, models []string) Agreement {
	norm := consensus.NewNormalizer(nil)
	normalized := make([]consensus.Ordered[consensus.Answer], len(records))
	for i, rec := range records {
		normalized[i] = norm.NormalizeAll(rec.RawAnswers)
	}

	a := Agreement{Models: models, Rates: make([][]*float64, len(models))}
	for i := range models {
		a.Rates[i] = make([]*float64, len(models))
	}

	for i, m1 := range models {
		one := 1.0
		a.Rates[i][i] = &one
		for j := i + 1; j < len(models); j++ {
			m2 := models[j]
			var both, same int
			for _, answers := range normalized {
				x, _ := answers.Get(m1)
				y, _ := answers.Get(m2)
				if !x.Present() || !y.Present() {
					continue
				}
				both++
				if consensus.Equivalent(x, y) {
					same++
				}
			}
			if both == 0 {
				continue
			}
			rate := float64(same) / float64(both)
			a.Rates[i][j] = &rate
			a.Rates[j][i] = &rate
		}
	}
	return a
}

// complexity splits records into quartiles by problem length and reports
// the full-consensus rate of each. Fewer than four records yield nothing.
func complexity(records []*history.Record) []ComplexityBucket {
	n := len(records)
	if n < len(ComplexityLabels) {
		return nil
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b *history.Record) int {
		return cmp.Compare(utf8.RuneCountInString(a.ProblemText), utf8.RuneCountInString(b.ProblemText))
	})

	buckets := make([]ComplexityBucket, len(ComplexityLabels))
	for q, label := range ComplexityLabels {
		part := sorted[q*n/len(ComplexityLabels) : (q+1)*n/len(ComplexityLabels)]
		full := count(part, func(rec *history.Record) bool {
			return rec.Consensus.Status == consensus.StatusFullConsensus
		})
		buckets[q] = ComplexityBucket{
			Label:             label,
			MinLength:         utf8.RuneCountInString(part[0].ProblemText),
			MaxLength:         utf8.RuneCountInString(part[len(part)-1].ProblemText),
			Count:             len(part),
			FullConsensusRate: percent(full, len(part)),
		}
	}
	return buckets
}

// trend computes the rolling success rate in timestamp order with a window
// of min(TrendWindow, n). A window of one yields no trend.
func trend(records []*history.Record) (int, []TrendPoint) {
	window := min(TrendWindow, len(records))
	if window <= 1 {
		return window, nil
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b *history.Record) int {
		return a.Timestamp.Compare(b.Timestamp.Time)
	})

	points := make([]TrendPoint, 0, len(sorted)-window+1)
	hits := 0
	for i, rec := range sorted {
		if succeeded(rec) {
			hits++
		}
		if i >= window && succeeded(sorted[i-window]) {
			hits--
		}
		if i >= window-1 {
			points = append(points, TrendPoint{
				ID:          rec.ID,
				Timestamp:   rec.Timestamp.Time,
				SuccessRate: percent(hits, window),
			})
		}
	}
	return window, points
}
