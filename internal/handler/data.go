package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/chatbot/internal/handler/views"
	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/store"
)

var metricInfo = []views.MetricInfo{
	{NameID: "MetricAccuracy", DescID: "MetricAccuracyDesc"},
	{NameID: "MetricResponseTime", DescID: "MetricResponseTimeDesc"},
	{NameID: "MetricWordCount", DescID: "MetricWordCountDesc"},
	{NameID: "MetricBLEU", DescID: "MetricBLEUDesc"},
	{NameID: "MetricSimilarity", DescID: "MetricSimilarityDesc"},
	{NameID: "MetricRelevance", DescID: "MetricRelevanceDesc"},
	{NameID: "MetricEfficiency", DescID: "MetricEfficiencyDesc"},
}

func (h *Handler) handleDataPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	rememberPage(sess, "/data")

	v := views.DataView{Metrics: metricInfo}
	var err error
	if v.Count, err = h.store.Count(); err != nil {
		slog.Error("count records", "error", err)
	}
	if v.SeededAt, err = h.store.GetTime(store.MetaSamplesSeededAt); err != nil {
		slog.Warn("read metadata", "key", store.MetaSamplesSeededAt, "error", err)
	}
	if v.ResourcesAt, err = h.store.GetTime(store.MetaResourcesFetchedAt); err != nil {
		slog.Warn("read metadata", "key", store.MetaResourcesFetchedAt, "error", err)
	}

	h.render(w, r, views.DataPage(v, popFlashes(sess)))
}

func (h *Handler) handleAddSamples(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.AddSamples(r.Context(), h.scorer)
	if err != nil {
		slog.Error("add samples", "added", n, "error", err)
		flashT(r, "error", "SamplesFailed")
	} else {
		addFlash(r, "success", appI18n.Tp(r.Context(), "SamplesAdded", n))
	}
	h.refreshRecordGauge()
	h.redirect(w, r, "/data")
}

// handleClear deletes every record, but only with the confirm box ticked.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("confirm") != "yes" {
		flashT(r, "warning", "ClearNotConfirmed")
		h.redirect(w, r, "/data")
		return
	}
	if err := h.store.Clear(); err != nil {
		slog.Error("clear database", "error", err)
		flashT(r, "error", "ClearFailed")
	} else {
		slog.Info("database cleared")
		flashT(r, "success", "DatabaseCleared")
	}
	h.refreshRecordGauge()
	h.redirect(w, r, "/data")
}
