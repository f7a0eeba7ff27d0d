package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/logging"
	"lsm/internal/validate"
)

// SessionController logs users in and out.
type SessionController struct {
	*Controller
}

type loginData struct {
	Next string
}

// Form shows the login form. Logged-in users go straight to the dashboard.
func (c *SessionController) Form(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if c.User(r) != nil {
		return c.Redirect(w, r, "")
	}
	data := loginData{Next: c.app.safeNext(r.URL.Query().Get("next"))}
	return c.Render(w, "session/login", c.NewPage(r, "Log in", "session", data))
}

// Login checks the credentials and starts an authenticated session under a
// new id.
func (c *SessionController) Login(w http.ResponseWriter, r *http.Request, _ ...string) error {
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := "session/login?next=" + url.QueryEscape(form.Get("next"))
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}
	v := validate.New()
	if !v.Check(form, auth.LoginRules) {
		return c.Invalid(w, r, v, back)
	}

	user, err := c.app.users.Authenticate(r.Context(), form.Get("email"), form.Get("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInactiveUser):
		logging.WithContext(r.Context(), c.app.logger).Info("login refused",
			logging.String(logging.FieldEventType, "login_refused"),
			logging.String("email", form.Get("email")),
			logging.String("reason", err.Error()))
		v.Add("email", capitalize(err.Error())+".")
		return c.Invalid(w, r, v, back)
	case err != nil:
		return err
	}

	sess := c.Session(r)
	c.app.sessions.Renew(sess)
	sess.SetUser(user.ID)
	sess.GenerateToken()
	logging.WithContext(r.Context(), c.app.logger).Info("login",
		logging.String(logging.FieldEventType, "login"),
		logging.Int64(logging.FieldUserID, user.ID))
	http.Redirect(w, r, c.app.safeNext(form.Get("next")), http.StatusSeeOther)
	return nil
}

// Logout destroys the session.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	if err := c.CheckToken(r); err != nil {
		return err
	}
	if err := c.app.sessions.Destroy(r.Context(), w, c.Session(r)); err != nil {
		return err
	}
	return c.Redirect(w, r, "session/login")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
