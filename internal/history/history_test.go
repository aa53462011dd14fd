package history

import (
	"math"
	"testing"

	"github.com/pavelanni/chatbot/internal/model"
)

func rec(id int64, isCorrect, responseTime float64, modelName string) model.InteractionRecord {
	return model.InteractionRecord{
		ID:           id,
		Question:     "Q",
		Answer:       "A",
		IsCorrect:    isCorrect,
		ResponseTime: responseTime,
		ModelName:    modelName,
	}
}

func ptr(v float64) *float64 { return &v }

func TestFilterScenario(t *testing.T) {
	records := []model.InteractionRecord{rec(1, 1.0, 0.5, "gemma")}

	got := FilterExact.Apply(records)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("exact filter = %v", got)
	}
	if got := FilterIncorrect.Apply(records); len(got) != 0 {
		t.Errorf("incorrect filter = %v", got)
	}
	if got := FilterAll.Apply(records); len(got) != 1 {
		t.Errorf("all filter = %v", got)
	}
}

func TestFilterThreeWay(t *testing.T) {
	records := []model.InteractionRecord{
		rec(1, 1.0, 1, "a"), rec(2, 0.5, 1, "a"), rec(3, 0.0, 1, "a"), rec(4, 0.5, 1, "b"),
	}
	tests := []struct {
		filter Filter
		want   []int64
	}{
		{FilterAll, []int64{1, 2, 3, 4}},
		{FilterExact, []int64{1}},
		{FilterPartial, []int64{2, 4}},
		{FilterIncorrect, []int64{3}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			got := tt.filter.Apply(records)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("record %d id = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	if ParseFilter("partial") != FilterPartial {
		t.Error("partial not parsed")
	}
	if ParseFilter("bogus") != FilterAll || ParseFilter("") != FilterAll {
		t.Error("unknown filters should default to all")
	}
}

func TestPaginate(t *testing.T) {
	var records []model.InteractionRecord
	for i := int64(1); i <= 12; i++ {
		records = append(records, rec(i, 1, 1, "m"))
	}

	tests := []struct {
		page        int
		first, last int64
		n           int
	}{
		{1, 1, 5, 5},
		{2, 6, 10, 5},
		{3, 11, 12, 2},
	}
	for _, tt := range tests {
		p := Paginate(records, tt.page, PageSize)
		if p.TotalPages != 3 || p.TotalItems != 12 {
			t.Errorf("page %d totals = %d pages, %d items", tt.page, p.TotalPages, p.TotalItems)
		}
		if len(p.Items) != tt.n {
			t.Fatalf("page %d has %d items, want %d", tt.page, len(p.Items), tt.n)
		}
		if p.Items[0].ID != tt.first || p.Items[len(p.Items)-1].ID != tt.last {
			t.Errorf("page %d spans %d-%d, want %d-%d", tt.page, p.Items[0].ID, p.Items[len(p.Items)-1].ID, tt.first, tt.last)
		}
		if int64(p.First) != tt.first || int64(p.Last) != tt.last {
			t.Errorf("page %d First/Last = %d/%d", tt.page, p.First, p.Last)
		}
	}

	if p := Paginate(records, 99, PageSize); p.Number != 3 {
		t.Errorf("page 99 clamped to %d, want 3", p.Number)
	}
	if p := Paginate(records, 0, PageSize); p.Number != 1 {
		t.Errorf("page 0 clamped to %d, want 1", p.Number)
	}
	if p := Paginate(nil, 1, PageSize); p.TotalPages != 0 || len(p.Items) != 0 || p.First != 0 {
		t.Errorf("empty paginate = %+v", p)
	}
}

func TestAccuracyDistribution(t *testing.T) {
	records := []model.InteractionRecord{
		rec(1, 1.0, 1, "a"), rec(2, 1.0, 1, "a"), rec(3, 0.0, 1, "a"),
	}
	got := AccuracyDistribution(records)
	want := []LabelCount{
		{model.LabelExact, 2}, {model.LabelPartial, 0}, {model.LabelIncorrect, 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestModelAccuracy(t *testing.T) {
	records := []model.InteractionRecord{
		rec(1, 1.0, 1, "xglm"), rec(2, 0.0, 1, "xglm"), rec(3, 0.5, 1, "gemma"),
	}
	got := ModelAccuracy(records)
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0].Model != "gemma" || got[0].Mean != 0.5 || got[0].Count != 1 {
		t.Errorf("gemma = %+v", got[0])
	}
	if got[1].Model != "xglm" || got[1].Mean != 0.5 || got[1].Count != 2 {
		t.Errorf("xglm = %+v", got[1])
	}
}

func TestEfficiency(t *testing.T) {
	if got := EfficiencyScore(1.0, 0); math.Abs(got-10.0) > 1e-9 {
		t.Errorf("EfficiencyScore(1, 0) = %v, want 10", got)
	}
	if got := EfficiencyScore(0, 0); got != 0 {
		t.Errorf("EfficiencyScore(0, 0) = %v, want 0", got)
	}

	var records []model.InteractionRecord
	for i := int64(1); i <= 12; i++ {
		records = append(records, rec(i, 1.0, float64(i), "m"))
	}
	records = append(records, rec(13, 0, 0, "m"))

	top := Efficiency(records, TopEfficiency)
	if len(top) != TopEfficiency {
		t.Fatalf("got %d entries", len(top))
	}
	if top[0].ID != 1 {
		t.Errorf("fastest correct record should rank first, got %d", top[0].ID)
	}
	for i := 1; i < len(top); i++ {
		if top[i].Score > top[i-1].Score {
			t.Errorf("ranking not descending at %d", i)
		}
	}
}

func TestScatterSkipsNulls(t *testing.T) {
	a := rec(1, 1.0, 0.5, "m")
	a.BLEUScore = ptr(0.4)
	b := rec(2, 0.0, 2.0, "m")
	records := []model.InteractionRecord{a, b}

	pts := Scatter(records, MetricBLEU)
	if len(pts) != 1 {
		t.Fatalf("got %d points", len(pts))
	}
	if pts[0].X != 0.5 || pts[0].Y != 0.4 || pts[0].Label != model.LabelExact {
		t.Errorf("point = %+v", pts[0])
	}

	// word_count is never null.
	if pts := Scatter(records, MetricWordCount); len(pts) != 2 {
		t.Errorf("word_count points = %d", len(pts))
	}

	avail := AvailableMetrics(records, ScatterMetrics)
	if len(avail) != 2 || avail[0] != MetricBLEU || avail[1] != MetricWordCount {
		t.Errorf("AvailableMetrics = %v", avail)
	}
}

func TestDescribe(t *testing.T) {
	var records []model.InteractionRecord
	for i, rt := range []float64{1, 2, 3, 4} {
		records = append(records, rec(int64(i+1), 1, rt, "m"))
	}
	records[0].RelevanceScore = ptr(0.5)

	got := Describe(records, StatsMetrics)
	byMetric := make(map[Metric]Summary)
	for _, s := range got {
		byMetric[s.Metric] = s
	}
	if _, ok := byMetric[MetricBLEU]; ok {
		t.Error("all-null column should be skipped")
	}

	rt, ok := byMetric[MetricResponseTime]
	if !ok {
		t.Fatal("response_time missing")
	}
	if rt.Count != 4 || rt.Mean != 2.5 || rt.Min != 1 || rt.Max != 4 {
		t.Errorf("response_time summary = %+v", rt)
	}
	if math.Abs(rt.Std-1.2909944487) > 1e-9 {
		t.Errorf("std = %v, want sample std", rt.Std)
	}
	if rt.Q1 != 1.75 || rt.Median != 2.5 || rt.Q3 != 3.25 {
		t.Errorf("quartiles = %v %v %v", rt.Q1, rt.Median, rt.Q3)
	}

	rel := byMetric[MetricRelevance]
	if rel.Count != 1 || !math.IsNaN(rel.Std) || rel.Median != 0.5 {
		t.Errorf("relevance summary = %+v", rel)
	}
}
