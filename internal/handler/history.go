package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/pavelanni/chatbot/internal/handler/views"
	"github.com/pavelanni/chatbot/internal/history"
	"github.com/pavelanni/chatbot/internal/model"
)

const (
	tabList     = "list"
	tabAnalysis = "analysis"
)

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	q := r.URL.Query()
	route := "/history"
	if r.URL.RawQuery != "" {
		route += "?" + r.URL.RawQuery
	}
	rememberPage(sess, route)

	records, err := h.store.ReadAll()
	if err != nil {
		slog.Error("read history", "error", err)
		flashT(r, "error", "HistoryFailed")
	}

	v := views.HistoryView{
		Empty:   len(records) == 0,
		Tab:     tabList,
		Filter:  history.ParseFilter(q.Get("filter")),
		Filters: history.Filters,
	}
	if q.Get("tab") == tabAnalysis {
		v.Tab = tabAnalysis
	}

	if v.Tab == tabList {
		page, _ := strconv.Atoi(q.Get("page"))
		v.Page = history.Paginate(v.Filter.Apply(records), page, history.PageSize)
		for i := 1; i <= v.Page.TotalPages; i++ {
			v.Pages = append(v.Pages, i)
		}
	} else {
		analyze(&v, records, history.Metric(q.Get("metric")))
	}

	h.render(w, r, views.HistoryPage(v, popFlashes(sess)))
}

// analyze fills the analysis tab. An unknown or unavailable metric falls
// back to the first one with data.
func analyze(v *views.HistoryView, records []model.InteractionRecord, metric history.Metric) {
	v.Distribution = history.AccuracyDistribution(records)
	for _, d := range v.Distribution {
		v.MaxCount = max(v.MaxCount, d.Count)
	}
	v.ModelAccuracy = history.ModelAccuracy(records)

	v.Metrics = history.AvailableMetrics(records, history.ScatterMetrics)
	if len(v.Metrics) > 0 {
		if !slices.Contains(v.Metrics, metric) {
			metric = v.Metrics[0]
		}
		v.Metric = metric
		v.Scatter = views.NewScatterPlot(history.Scatter(records, metric))
	}

	v.Stats = history.Describe(records, history.StatsMetrics)
	v.Efficiency = history.Efficiency(records, history.TopEfficiency)
	if len(v.Efficiency) > 0 {
		v.MaxEfficiency = v.Efficiency[0].Score
	}
}
