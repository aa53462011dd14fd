package history

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pavelanni/chatbot/internal/model"
)

// Metric names a numeric column of InteractionRecord.
type Metric string

const (
	MetricResponseTime Metric = "response_time"
	MetricBLEU         Metric = "bleu_score"
	MetricSimilarity   Metric = "similarity_score"
	MetricRelevance    Metric = "relevance_score"
	MetricWordCount    Metric = "word_count"
)

// ScatterMetrics are the metrics that can be plotted against response time.
var ScatterMetrics = []Metric{MetricBLEU, MetricSimilarity, MetricRelevance, MetricWordCount}

// StatsMetrics are the columns summarized by Describe.
var StatsMetrics = []Metric{MetricResponseTime, MetricBLEU, MetricSimilarity, MetricWordCount, MetricRelevance}

// Value returns the metric for r, or false when it is null.
func (m Metric) Value(r model.InteractionRecord) (float64, bool) {
	switch m {
	case MetricResponseTime:
		return r.ResponseTime, true
	case MetricWordCount:
		return float64(r.WordCount), true
	case MetricBLEU:
		return deref(r.BLEUScore)
	case MetricSimilarity:
		return deref(r.SimilarityScore)
	case MetricRelevance:
		return deref(r.RelevanceScore)
	}
	return 0, false
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// AvailableMetrics returns the candidates that have a value in at least one record.
func AvailableMetrics(records []model.InteractionRecord, candidates []Metric) []Metric {
	var out []Metric
	for _, m := range candidates {
		for _, r := range records {
			if _, ok := m.Value(r); ok {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Point is one scatter plot sample.
type Point struct {
	ID    int64
	X     float64 // response time
	Y     float64
	Label model.FeedbackLabel
}

// Scatter pairs response time with metric, colored by accuracy label.
// Records whose metric is null are skipped.
func Scatter(records []model.InteractionRecord, metric Metric) []Point {
	var out []Point
	for _, r := range records {
		y, ok := metric.Value(r)
		if !ok {
			continue
		}
		out = append(out, Point{
			ID:    r.ID,
			X:     r.ResponseTime,
			Y:     y,
			Label: model.LabelForScore(r.IsCorrect),
		})
	}
	return out
}

// Summary is the descriptive statistics of one column.
type Summary struct {
	Metric Metric
	Count  int
	Mean   float64
	Std    float64 // sample standard deviation, NaN for a single value
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

// Describe summarizes each metric that has at least one value.
func Describe(records []model.InteractionRecord, metrics []Metric) []Summary {
	var out []Summary
	for _, m := range metrics {
		var xs []float64
		for _, r := range records {
			if v, ok := m.Value(r); ok {
				xs = append(xs, v)
			}
		}
		if len(xs) == 0 {
			continue
		}
		slices.Sort(xs)
		mean, std := stat.MeanStdDev(xs, nil)
		if len(xs) < 2 {
			std = math.NaN()
		}
		out = append(out, Summary{
			Metric: m,
			Count:  len(xs),
			Mean:   mean,
			Std:    std,
			Min:    floats.Min(xs),
			Q1:     quantile(xs, 0.25),
			Median: quantile(xs, 0.5),
			Q3:     quantile(xs, 0.75),
			Max:    floats.Max(xs),
		})
	}
	return out
}

// quantile linearly interpolates between closest ranks at position
// (n-1)*p of sorted xs.
func quantile(sorted []float64, p float64) float64 {
	pos := float64(len(sorted)-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
