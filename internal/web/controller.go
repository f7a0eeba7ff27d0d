package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/router"
	"lsm/internal/session"
	"lsm/internal/validate"
)

// Flash keys shared with the templates.
const (
	flashSuccess = "success-msg"
	flashError   = "err-msg"
)

// Page is the data every template receives.
type Page struct {
	Title   string
	Section string
	User    *auth.User
	Token   string
	BaseURL string
	Success string
	Errors  []string
	Input   url.Values
	Data    any
}

// Value returns the flashed input for field when the form is being shown
// again after a failed submit, otherwise fallback.
func (p *Page) Value(field string, fallback any) string {
	if p.Input != nil {
		if vs, ok := p.Input[field]; ok && len(vs) > 0 {
			return vs[0]
		}
	}
	switch v := fallback.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case *int64:
		if v == nil {
			return ""
		}
		return strconv.FormatInt(*v, 10)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

// Can reports whether the current user holds privilege.
func (p *Page) Can(privilege string) bool { return p.User.HasPrivilege(privilege) }

// Reply is the JSON body of every AJAX action.
type Reply struct {
	IsOk    bool    `json:"isOk"`
	Token   string  `json:"token"`
	Error   string  `json:"error"`
	Success string  `json:"success"`
	Items   []int64 `json:"items"`
	Status  *bool   `json:"status,omitempty"`
}

// Controller holds the helpers shared by every controller.
type Controller struct {
	app *App
}

// User returns the logged-in user.
func (c *Controller) User(r *http.Request) *auth.User {
	return auth.UserFromContext(r.Context())
}

// Session returns the request's session.
func (c *Controller) Session(r *http.Request) *session.Session {
	return session.FromContext(r.Context())
}

// Require fails with auth.ErrPermissionDenied unless the current user holds
// privilege.
func (c *Controller) Require(r *http.Request, privilege string) error {
	if !c.User(r).HasPrivilege(privilege) {
		return fmt.Errorf("%s requires %s: %w", r.URL.Path, privilege, auth.ErrPermissionDenied)
	}
	return nil
}

// PostForm parses the request body and returns the posted values.
func (c *Controller) PostForm(r *http.Request) (url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return nil, router.Errorf(http.StatusBadRequest, "Malformed form data.")
	}
	return r.PostForm, nil
}

// CheckToken validates the form's CSRF token against the session.
func (c *Controller) CheckToken(r *http.Request) error {
	if sess := c.Session(r); sess == nil || !sess.CheckToken(r.PostFormValue("token")) {
		return ErrInvalidToken
	}
	return nil
}

// URL prefixes path with the base path.
func (c *Controller) URL(path string) string { return c.app.URL(path) }

// Redirect sends a 303 to path below the base path.
func (c *Controller) Redirect(w http.ResponseWriter, r *http.Request, path string) error {
	http.Redirect(w, r, c.URL(path), http.StatusSeeOther)
	return nil
}

// Success flashes msg and redirects to path.
func (c *Controller) Success(w http.ResponseWriter, r *http.Request, msg, path string) error {
	c.Session(r).Flash(flashSuccess, msg)
	return c.Redirect(w, r, path)
}

// Fail flashes msg as an error and redirects to path.
func (c *Controller) Fail(w http.ResponseWriter, r *http.Request, msg, path string) error {
	c.Session(r).Flash(flashError, msg)
	return c.Redirect(w, r, path)
}

// Invalid flashes the validation errors and the submitted input, then
// redirects back to the form at path.
func (c *Controller) Invalid(w http.ResponseWriter, r *http.Request, v *validate.Validator, path string) error {
	sess := c.Session(r)
	sess.Flash(flashError, v.ErrorsJSON())
	sess.FlashInput(r.PostForm)
	return c.Redirect(w, r, path)
}

// NewPage prepares a Page with the current user, token and pending flash
// messages.
func (c *Controller) NewPage(r *http.Request, title, section string, data any) *Page {
	p := &Page{
		Title:   title,
		Section: section,
		User:    c.User(r),
		BaseURL: c.URL(""),
		Data:    data,
	}
	if sess := c.Session(r); sess != nil {
		p.Token = sess.Token()
		p.Success = sess.TakeFlash(flashSuccess)
		p.Errors = validate.DecodeErrors(sess.TakeFlash(flashError))
		p.Input = sess.TakeInput()
	}
	return p
}

// Render writes template name with page.
func (c *Controller) Render(w http.ResponseWriter, name string, page *Page) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return c.app.views.Render(w, name, page)
}

// JSON writes an AJAX reply with a fresh CSRF token.
func (c *Controller) JSON(w http.ResponseWriter, r *http.Request, reply Reply) error {
	if sess := c.Session(r); sess != nil {
		reply.Token = sess.GenerateToken()
	}
	writeJSON(w, http.StatusOK, reply)
	return nil
}

// Ajax runs op behind the token and privilege checks and replies with the
// outcome. Expected failures keep their message; anything else is only
// shown verbatim in debug mode.
func (c *Controller) Ajax(w http.ResponseWriter, r *http.Request, privilege, failMsg string, op func() (Reply, error)) error {
	var reply Reply
	_ = r.ParseForm()
	switch {
	case c.CheckToken(r) != nil:
		reply.Error = "The request could not be processed."
	case privilege != "" && !c.User(r).HasPrivilege(privilege):
		reply.Error = "Permission denied."
	default:
		out, err := op()
		if err == nil {
			out.IsOk = true
			reply = out
			break
		}
		reply = out
		reply.IsOk = false
		reply.Success = ""
		reply.Error = c.ajaxError(r, err, failMsg)
	}
	return c.JSON(w, r, reply)
}

func (c *Controller) ajaxError(r *http.Request, err error, failMsg string) string {
	var userErr *userError
	switch {
	case errors.As(err, &userErr):
		return userErr.msg
	case errors.Is(err, mapper.ErrNotFound):
		return failMsg + " Some items no longer exist."
	}
	logging.WithContext(r.Context(), c.app.logger).Warn("ajax action failed",
		logging.String(logging.FieldEventType, "ajax_failed"),
		logging.String("path", r.URL.Path),
		logging.Error(err))
	if c.app.cfg.Dev.Debug {
		return err.Error()
	}
	return failMsg
}

// userError carries a message that is safe to show as is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func shown(msg string, err error) error { return &userError{msg: msg, err: err} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isAjax(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// parseID converts a captured path segment or form value.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, mapper.ErrNotFound)
	}
	return id, nil
}

// formIDs reads the "items" list of an AJAX bulk request. Both "items" and
// "items[]" are accepted.
func formIDs(r *http.Request) ([]int64, error) {
	if err := r.ParseForm(); err != nil {
		return nil, shown("Invalid selection.", err)
	}
	raw := slices.Concat(r.PostForm["items[]"], r.PostForm["items"])
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		for _, part := range strings.Split(s, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, shown("Invalid selection.", err)
			}
			ids = append(ids, id)
		}
	}
	ids = mapper.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil, shown("Select at least one item.", nil)
	}
	return ids, nil
}

// formBool reads a checkbox or a 0/1 select.
func formBool(r *http.Request, field string) bool {
	switch strings.ToLower(strings.TrimSpace(r.PostFormValue(field))) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

// optionalID reads an id field where empty means none.
func optionalID(r *http.Request, field string) *int64 {
	raw := strings.TrimSpace(r.PostFormValue(field))
	if raw == "" || raw == "0" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// pageNumber reads ?page=, defaulting to 1.
func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// bulkOp applies a status change to a set of ids.
type bulkOp func(ctx context.Context, ids []int64) error
