package guard

import (
	"context"
	"net/http"
	"net/url"

	"expense-approvals/internal/models"

	"github.com/rs/zerolog"
)

// Context key type to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

// NoticeCookieName carries the access notice across the redirect.
const NoticeCookieName = "notice"

// NoticeHeader carries the access notice on the redirect response itself.
const NoticeHeader = "X-Access-Notice"

// WithUser returns a context carrying the session user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the session user stored by the middleware, or nil.
func UserFromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userContextKey).(*models.User); ok {
		return u
	}
	return nil
}

// SessionFunc resolves the session user of a request, nil when logged out.
type SessionFunc func(r *http.Request) (*models.User, error)

// Middleware evaluates every request before it reaches next. Allowed requests
// carry the session user in their context.
func (g *Guard) Middleware(session SessionFunc, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := session(r)
			if err != nil {
				log.Error().Err(err).Str("path", r.URL.Path).Msg("resolve session")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			d := g.Decide(user, r.URL.EscapedPath())
			if d.Action != Allow {
				if d.Notice != "" {
					log.Info().Str("path", r.URL.Path).Str("role", string(user.Role)).Msg("access restricted")
					w.Header().Set(NoticeHeader, d.Notice)
					http.SetCookie(w, &http.Cookie{
						Name:     NoticeCookieName,
						Value:    url.QueryEscape(d.Notice),
						Path:     "/",
						HttpOnly: true,
						SameSite: http.SameSiteLaxMode,
					})
				}
				http.Redirect(w, r, d.Location, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// TakeNotice returns the pending access notice and clears its cookie.
func TakeNotice(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(NoticeCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     NoticeCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	notice, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return notice
}
