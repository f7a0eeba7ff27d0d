// Package router dispatches requests through an ordered table of regular
// expression routes. The first pattern that matches the whole path (after
// the base path is stripped) wins; its capture groups become handler args.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"lsm/internal/logging"
)

// Handler serves a matched route. args holds the pattern's capture groups.
type Handler func(w http.ResponseWriter, r *http.Request, args ...string) error

// Classifier maps a handler error to a status code and the text shown to
// the user. Returning 0 defers to the default classification.
type Classifier func(err error) (status int, message string)

// ErrorRenderer writes an error page.
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, status int, message string)

// Options configures a Router.
type Options struct {
	BasePath string
	Logger   *slog.Logger
	Classify Classifier
	Render   ErrorRenderer
}

// Route is one entry of the table.
type Route struct {
	Pattern string
	Methods []string

	re      *regexp.Regexp
	handler Handler
}

// Router is an http.Handler over the route table.
type Router struct {
	basePath string
	routes   []*Route
	logger   *slog.Logger
	classify Classifier
	render   ErrorRenderer
}

// New returns an empty Router.
func New(opts Options) *Router {
	rt := &Router{
		basePath: strings.TrimRight(opts.BasePath, "/"),
		logger:   logging.NewComponentLogger(opts.Logger, "router"),
		classify: opts.Classify,
		render:   opts.Render,
	}
	if rt.render == nil {
		rt.render = func(w http.ResponseWriter, _ *http.Request, status int, message string) {
			http.Error(w, message, status)
		}
	}
	return rt
}

// Map appends a route. The pattern is anchored at both ends. An invalid
// pattern panics, like http.ServeMux does for bad patterns.
func (rt *Router) Map(pattern string, methods []string, h Handler) {
	re := regexp.MustCompile("^" + pattern + "$")
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(m)
	}
	rt.routes = append(rt.routes, &Route{Pattern: pattern, Methods: upper, re: re, handler: h})
}

// Get maps a GET (and HEAD) route.
func (rt *Router) Get(pattern string, h Handler) { rt.Map(pattern, []string{http.MethodGet}, h) }

// Post maps a POST route.
func (rt *Router) Post(pattern string, h Handler) { rt.Map(pattern, []string{http.MethodPost}, h) }

// Routes returns a copy of the table in match order.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	for i, r := range rt.routes {
		out[i] = Route{Pattern: r.Pattern, Methods: slices.Clone(r.Methods)}
	}
	return out
}

// BasePath is the prefix stripped before matching.
func (rt *Router) BasePath() string { return rt.basePath }

// URL prefixes path with the base path.
func (rt *Router) URL(path string) string {
	return rt.basePath + "/" + strings.TrimLeft(path, "/")
}

// Match returns the pattern of the first route matching path, ignoring the
// method, or "" when none does. Metrics use it as a low-cardinality label.
func (rt *Router) Match(path string) string {
	if rt.basePath != "" {
		if path != rt.basePath && !strings.HasPrefix(path, rt.basePath+"/") {
			return ""
		}
		path = strings.TrimPrefix(path, rt.basePath)
	}
	if path == "" {
		path = "/"
	}
	for _, route := range rt.routes {
		if route.re.MatchString(path) {
			return route.Pattern
		}
	}
	return ""
}

func (r *Route) allows(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return slices.Contains(r.Methods, method)
}

// ServeHTTP dispatches to the first matching route.
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if rt.basePath != "" {
		if path != rt.basePath && !strings.HasPrefix(path, rt.basePath+"/") {
			rt.render(w, req, http.StatusNotFound, "Page not found.")
			return
		}
		path = strings.TrimPrefix(path, rt.basePath)
	}
	if path == "" {
		path = "/"
	}

	var allowed []string
	for _, route := range rt.routes {
		m := route.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if !route.allows(req.Method) {
			allowed = append(allowed, route.Methods...)
			continue
		}
		ctx := logging.WithRoute(req.Context(), route.Pattern)
		req = req.WithContext(ctx)
		if err := route.handler(w, req, m[1:]...); err != nil {
			rt.fail(w, req, err)
		}
		return
	}

	if len(allowed) > 0 {
		slices.Sort(allowed)
		w.Header().Set("Allow", strings.Join(slices.Compact(allowed), ", "))
		rt.render(w, req, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}
	rt.render(w, req, http.StatusNotFound, "Page not found.")
}

func (rt *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	status, message := 0, ""
	if rt.classify != nil {
		status, message = rt.classify(err)
	}
	if status == 0 {
		status, message = Classify(err)
	}
	logger := logging.WithContext(req.Context(), rt.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("handler failed",
			logging.String(logging.FieldEventType, "handler_error"),
			logging.Int("status", status),
			logging.Error(err))
	} else {
		logger.Debug("handler refused request", logging.Int("status", status), logging.Error(err))
	}
	rt.render(w, req, status, message)
}

// StatusError carries an explicit status code and user-facing message.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error { return e.Err }

// Errorf returns a StatusError with a formatted message.
func Errorf(status int, format string, args ...any) error {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Classify is the default error classification: a StatusError speaks for
// itself and anything else is an internal error.
func Classify(err error) (int, string) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, se.Message
	}
	return http.StatusInternalServerError, err.Error()
}
