package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pavelanni/chatbot/internal/handler/views"
	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/llm"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/session"
	"github.com/pavelanni/chatbot/internal/telemetry"
)

// observedModel reports every generation to the metrics collectors.
type observedModel struct {
	*llm.Model
	metrics *telemetry.Collectors
}

func (m observedModel) Generate(ctx context.Context, question string) llm.Generation {
	g := m.Model.Generate(ctx, question)
	m.metrics.ObserveGeneration(m.Key, g.Elapsed, g.Err != nil)
	return g
}

func (h *Handler) handleChatPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	rememberPage(sess, "/chat")

	st := sess.State()
	_, err := h.models.Get(st.SelectedModel)

	var loadMessages []model.LoadMessage
	if shown, _ := sess.Get(keyLoadShown, false).(bool); !shown {
		loadMessages = h.loadMessages
		sess.Set(keyLoadShown, true)
	}

	h.render(w, r, views.ChatPage(views.ChatView{
		Models:       h.models.Available(),
		Selected:     st.SelectedModel,
		Unavailable:  err != nil,
		State:        st,
		LoadMessages: loadMessages,
		Labels:       model.Labels,
	}, popFlashes(sess)))
}

func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	key := formValue(r, "model")
	if !slices.Contains(h.models.Keys(), key) {
		http.Error(w, "unknown model", http.StatusBadRequest)
		return
	}

	prev := sess.State().SelectedModel
	if err := sess.SelectModel(key); err != nil {
		if errors.Is(err, session.ErrBusy) {
			flashT(r, "warning", "ModelBusy")
		}
		h.redirect(w, r, "/chat")
		return
	}
	if key != prev {
		addFlash(r, "success", appI18n.Td(r.Context(), "ModelSwitched", map[string]any{"Model": key}))
	}
	h.redirect(w, r, "/chat")
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	key := sess.State().SelectedModel

	m, err := h.models.Get(key)
	if err != nil {
		addFlash(r, "error", appI18n.Td(r.Context(), "ModelNotLoaded", map[string]any{"Model": key}))
		h.redirect(w, r, "/chat")
		return
	}

	st, err := sess.Submit(r.Context(), r.FormValue("question"), key, observedModel{Model: m, metrics: h.metrics})
	switch {
	case errors.Is(err, session.ErrEmptyQuestion):
		flashT(r, "warning", "EmptyQuestion")
	case errors.Is(err, session.ErrBusy):
		flashT(r, "warning", "ModelBusy")
	case err != nil:
		slog.Error("submit question", "session", sess.ID(), "error", err)
	case st.LastError != nil:
		flashT(r, "error", "GenerationFailed")
	}
	h.redirect(w, r, "/chat")
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	in := session.FeedbackInput{
		Label:         model.FeedbackLabel(r.FormValue("label")),
		CorrectAnswer: r.FormValue("correct_answer"),
		Comment:       r.FormValue("comment"),
	}

	_, err := sess.Feedback(r.Context(), in, h.scorer, h.store)
	switch {
	case errors.Is(err, session.ErrInvalidLabel):
		flashT(r, "warning", "InvalidLabel")
	case errors.Is(err, session.ErrAlreadyRated):
		flashT(r, "info", "FeedbackAlreadyGiven")
	case errors.Is(err, session.ErrNoAnswer):
		flashT(r, "warning", "NoAnswerToRate")
	case err != nil:
		slog.Error("save feedback", "session", sess.ID(), "error", err)
		flashT(r, "error", "FeedbackFailed")
	default:
		h.metrics.Feedback.WithLabelValues(sess.State().SelectedModel, string(in.Label)).Inc()
		h.refreshRecordGauge()
		flashT(r, "success", "FeedbackSaved")
	}
	h.redirect(w, r, "/chat")
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	if err := sess.Next(); err != nil {
		slog.Debug("next question ignored", "session", sess.ID(), "error", err)
	}
	h.redirect(w, r, "/chat")
}
