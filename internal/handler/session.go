package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pavelanni/chatbot/internal/session"
)

const sessionCookieName = "chat_session"

type sessionCtxKey struct{}

// sessionMiddleware attaches the caller's session to the request context,
// starting a new one (and setting its cookie) when the cookie is missing or
// refers to an expired session.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookieName); err == nil {
			id = c.Value
		}
		sess, created := h.sessions.Ensure(id)
		if created {
			slog.Debug("session started", "session", sess.ID())
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    sess.ID(),
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		if sess.State().SelectedModel == "" && h.config.DefaultModel != "" {
			_ = sess.SelectModel(h.config.DefaultModel)
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromCtx(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*session.Session)
	return sess
}
