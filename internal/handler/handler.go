package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/chatbot/internal/handler/views"
	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/llm"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/session"
	"github.com/pavelanni/chatbot/internal/store"
	"github.com/pavelanni/chatbot/internal/telemetry"
)

// Session value keys.
const (
	keyFlash       = "flash"
	keyLastPage    = "last_page"
	keyLoadShown   = "load_messages_shown"
	defaultPageURL = "/chat"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        *store.Store
	models       *llm.Registry
	scorer       store.Scorer
	sessions     *session.Manager
	metrics      *telemetry.Collectors
	config       model.AppConfig
	loadMessages []model.LoadMessage
}

// New creates a new Handler. loadMessages are the model load notices shown
// once per session on the chat page.
func New(s *store.Store, models *llm.Registry, scorer store.Scorer, sessions *session.Manager,
	metrics *telemetry.Collectors, cfg model.AppConfig, loadMessages []model.LoadMessage) *Handler {
	if cfg.DefaultModel == "" {
		if avail := models.Available(); len(avail) > 0 {
			cfg.DefaultModel = avail[0]
		} else if keys := models.Keys(); len(keys) > 0 {
			cfg.DefaultModel = keys[0]
		}
	}
	h := &Handler{
		store:        s,
		models:       models,
		scorer:       scorer,
		sessions:     sessions,
		metrics:      metrics,
		config:       cfg,
		loadMessages: loadMessages,
	}
	h.refreshRecordGauge()
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleIndex)

		r.Get("/chat", h.handleChatPage)
		r.Post("/chat/model", h.handleSelectModel)
		r.Post("/chat/ask", h.handleAsk)
		r.Post("/chat/feedback", h.handleFeedback)
		r.Post("/chat/next", h.handleNext)

		r.Get("/history", h.handleHistory)

		r.Get("/data", h.handleDataPage)
		r.Post("/data/samples", h.handleAddSamples)
		r.Post("/data/clear", h.handleClear)
	})
	r.Handle("/metrics", h.metrics.Handler())
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute route with the base path.
func (h *Handler) path(route string) string {
	return h.config.BasePath + route
}

// cookiePath scopes cookies to the base path.
func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromCtx(r.Context())
	http.Redirect(w, r, h.path(sess.GetString(keyLastPage, defaultPageURL)), http.StatusSeeOther)
}

// rememberPage records route as the page GET / returns to.
func rememberPage(sess *session.Session, route string) {
	sess.Set(keyLastPage, route)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

// addFlash queues a translated message for the next page render.
func addFlash(r *http.Request, kind, msg string) {
	sess := sessionFromCtx(r.Context())
	flashes, _ := sess.Get(keyFlash, nil).([]views.Flash)
	sess.Set(keyFlash, append(flashes, views.Flash{Kind: kind, Message: msg}))
}

func flashT(r *http.Request, kind, msgID string) {
	addFlash(r, kind, appI18n.T(r.Context(), msgID))
}

// popFlashes returns and clears the queued messages.
func popFlashes(sess *session.Session) []views.Flash {
	flashes, _ := sess.Get(keyFlash, nil).([]views.Flash)
	if len(flashes) > 0 {
		sess.Set(keyFlash, nil)
	}
	return flashes
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, route string) {
	http.Redirect(w, r, h.path(route), http.StatusSeeOther)
}

func (h *Handler) refreshRecordGauge() {
	n, err := h.store.Count()
	if err != nil {
		slog.Warn("failed to count records", "error", err)
		return
	}
	h.metrics.StoredRecords.Set(float64(n))
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.FormValue(key))
}
