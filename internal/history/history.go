// Package history holds the read-side computations behind the history
// page. Everything here is pure: inputs are records from store.ReadAll.
package history

import (
	"cmp"
	"slices"

	"github.com/pavelanni/chatbot/internal/model"
)

// PageSize is the number of records per history page.
const PageSize = 5

// TopEfficiency is how many records the efficiency ranking shows.
const TopEfficiency = 10

// efficiencyOffset keeps the efficiency score finite for near-instant answers.
const efficiencyOffset = 0.1

// Filter selects records by is_correct.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterExact     Filter = "exact"
	FilterPartial   Filter = "partial"
	FilterIncorrect Filter = "incorrect"
)

// Filters lists the filters in display order.
var Filters = []Filter{FilterAll, FilterExact, FilterPartial, FilterIncorrect}

// ParseFilter maps a query value to a Filter, defaulting to FilterAll.
func ParseFilter(s string) Filter {
	for _, f := range Filters {
		if string(f) == s {
			return f
		}
	}
	return FilterAll
}

// Apply returns the records matching f, preserving order.
func (f Filter) Apply(records []model.InteractionRecord) []model.InteractionRecord {
	if f == FilterAll {
		return records
	}
	want := model.FeedbackLabel(f).Score()
	var out []model.InteractionRecord
	for _, r := range records {
		if r.IsCorrect == want {
			out = append(out, r)
		}
	}
	return out
}

// Page is one page of records.
type Page struct {
	Items      []model.InteractionRecord
	Number     int // 1-indexed
	TotalPages int
	TotalItems int
	First      int // 1-indexed position of Items[0], 0 when empty
	Last       int
}

// Paginate returns page number n (1-indexed) of records with size items per
// page. Out-of-range page numbers are clamped.
func Paginate(records []model.InteractionRecord, n, size int) Page {
	if size <= 0 {
		size = PageSize
	}
	total := len(records)
	pages := (total + size - 1) / size
	p := Page{TotalItems: total, TotalPages: pages}
	if total == 0 {
		p.Number = 1
		return p
	}
	p.Number = min(max(n, 1), pages)
	start := (p.Number - 1) * size
	end := min(start+size, total)
	p.Items = records[start:end]
	p.First = start + 1
	p.Last = end
	return p
}

// LabelCount is the number of records with one feedback label.
type LabelCount struct {
	Label model.FeedbackLabel
	Count int
}

// AccuracyDistribution counts records per label, in label order.
func AccuracyDistribution(records []model.InteractionRecord) []LabelCount {
	counts := make(map[model.FeedbackLabel]int)
	for _, r := range records {
		counts[model.LabelForScore(r.IsCorrect)]++
	}
	out := make([]LabelCount, 0, len(model.Labels))
	for _, l := range model.Labels {
		out = append(out, LabelCount{Label: l, Count: counts[l]})
	}
	return out
}

// ModelMean is a model's mean is_correct.
type ModelMean struct {
	Model string
	Mean  float64
	Count int
}

// ModelAccuracy returns the mean accuracy per model, sorted by model name.
func ModelAccuracy(records []model.InteractionRecord) []ModelMean {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range records {
		sums[r.ModelName] += r.IsCorrect
		counts[r.ModelName]++
	}
	out := make([]ModelMean, 0, len(counts))
	for m, c := range counts {
		out = append(out, ModelMean{Model: m, Mean: sums[m] / float64(c), Count: c})
	}
	slices.SortFunc(out, func(a, b ModelMean) int { return cmp.Compare(a.Model, b.Model) })
	return out
}

// EfficiencyEntry is a record's speed-adjusted accuracy.
type EfficiencyEntry struct {
	ID    int64
	Model string
	Score float64
}

// EfficiencyScore is isCorrect / (responseTime + 0.1).
func EfficiencyScore(isCorrect, responseTime float64) float64 {
	return isCorrect / (responseTime + efficiencyOffset)
}

// Efficiency ranks records by efficiency score, highest first, keeping at
// most limit entries. Ties keep the input order.
func Efficiency(records []model.InteractionRecord, limit int) []EfficiencyEntry {
	out := make([]EfficiencyEntry, 0, len(records))
	for _, r := range records {
		out = append(out, EfficiencyEntry{
			ID:    r.ID,
			Model: r.ModelName,
			Score: EfficiencyScore(r.IsCorrect, r.ResponseTime),
		})
	}
	slices.SortStableFunc(out, func(a, b EfficiencyEntry) int { return cmp.Compare(b.Score, a.Score) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
