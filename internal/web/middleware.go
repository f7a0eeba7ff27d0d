package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/session"
)

// sessionWriter saves the session right before the response header goes
// out, since the cookie has to be part of it.
type sessionWriter struct {
	http.ResponseWriter
	commit    func(http.ResponseWriter)
	committed bool
}

func (w *sessionWriter) flushSession() {
	if !w.committed {
		w.committed = true
		w.commit(w.ResponseWriter)
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// withSession loads the session before the handler and saves it once the
// handler starts writing, or when it returns without writing.
func (a *App) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := a.sessions.Load(ctx, r)
		if err != nil {
			status, msg := a.classify(err)
			if status == 0 {
				status, msg = http.StatusInternalServerError, genericError
			}
			logging.WithContext(ctx, a.logger).Error("session load failed",
				logging.String(logging.FieldEventType, "session_load_failed"),
				logging.Error(err))
			a.renderError(w, r, status, msg)
			return
		}
		sw := &sessionWriter{ResponseWriter: w}
		sw.commit = func(dst http.ResponseWriter) {
			if sess.Destroyed() {
				return
			}
			if err := a.sessions.Save(ctx, dst, sess); err != nil {
				logging.WithContext(ctx, a.logger).Error("session save failed",
					logging.String(logging.FieldEventType, "session_save_failed"),
					logging.Error(err))
			}
		}
		next.ServeHTTP(sw, r.WithContext(session.WithSession(ctx, sess)))
		sw.flushSession()
	})
}

// authenticate resolves the session's user and sends anonymous visitors to
// the login form. Deleted or deactivated accounts are logged out.
func (a *App) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := session.FromContext(ctx)

		var user *auth.User
		if uid := sess.UserID(); uid != 0 {
			u, err := a.users.Find(ctx, uid)
			switch {
			case err == nil && u.Status:
				user = u
			case err == nil || errors.Is(err, mapper.ErrNotFound):
				sess.ClearUser()
			default:
				logging.WithContext(ctx, a.logger).Error("load session user failed", logging.Error(err))
				a.renderError(w, r, http.StatusInternalServerError, genericError)
				return
			}
		}

		if user != nil {
			ctx = auth.WithUser(ctx, user)
			ctx = logging.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if a.isPublic(r) {
			next.ServeHTTP(w, r)
			return
		}
		if isAjax(r) || r.Method != http.MethodGet {
			a.renderError(w, r, http.StatusUnauthorized, "Your session has expired. Log in again.")
			return
		}
		login := a.URL("session/login") + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, login, http.StatusSeeOther)
	})
}

func (a *App) isPublic(r *http.Request) bool {
	return strings.TrimRight(r.URL.Path, "/") == a.URL("session/login")
}

// safeNext accepts only local paths below the base path as a post-login
// target.
func (a *App) safeNext(next string) string {
	home := a.URL("")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return home
	}
	base := a.router.BasePath()
	if base != "" && next != base && !strings.HasPrefix(next, base+"/") {
		return home
	}
	return next
}
