package web

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"lsm/internal/auth"
	"lsm/internal/config"
	"lsm/internal/content"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/router"
	"lsm/internal/session"
	"lsm/internal/store"
	"lsm/internal/uploads"
)

// ErrInvalidToken is returned when a form or AJAX request carries a missing
// or stale CSRF token.
var ErrInvalidToken = errors.New("invalid request token")

const genericError = "An error occurred while running the application. Contact the administrator."

// Deps are the collaborators an App needs.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Mapper   *mapper.Mapper
	Sessions *session.Manager
	Uploads  *uploads.Store
}

// App is the admin panel: route table, controllers and views.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *router.Router
	views    *Views
	mapper   *mapper.Mapper
	sessions *session.Manager
	uploads  *uploads.Store

	users      *auth.UserMapper
	categories *content.CategoryMapper
	series     *content.SeriesMapper
	posts      *content.PostMapper
	images     *content.ImageMapper
}

// New builds the App and registers every route.
func New(deps Deps) (*App, error) {
	if deps.Config == nil || deps.Mapper == nil || deps.Sessions == nil || deps.Uploads == nil {
		return nil, errors.New("web: config, mapper, sessions and uploads are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &App{
		cfg:        deps.Config,
		logger:     logging.NewComponentLogger(logger, "web"),
		mapper:     deps.Mapper,
		sessions:   deps.Sessions,
		uploads:    deps.Uploads,
		users:      auth.NewUserMapper(deps.Mapper),
		categories: content.NewCategoryMapper(deps.Mapper),
		series:     content.NewSeriesMapper(deps.Mapper),
		posts:      content.NewPostMapper(deps.Mapper),
		images:     content.NewImageMapper(deps.Mapper),
	}
	a.router = router.New(router.Options{
		BasePath: deps.Config.Server.BasePath,
		Logger:   logger,
		Classify: a.classify,
		Render:   a.renderError,
	})

	views, err := NewViews(a.templateFS(), a.funcs(), logger)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	a.views = views
	a.routes()
	return a, nil
}

func (a *App) templateFS() fs.FS {
	if a.cfg.Dev.ReloadTemplates {
		return os.DirFS(a.cfg.Dev.TemplateDir)
	}
	return EmbeddedTemplates()
}

// Handler is the admin panel with session handling and the login gate.
func (a *App) Handler() http.Handler {
	return a.withSession(a.authenticate(a.router))
}

// Router exposes the route table.
func (a *App) Router() *router.Router { return a.router }

// Views exposes the template set, used to start the dev reloader.
func (a *App) Views() *Views { return a.views }

// URL prefixes path with the configured base path.
func (a *App) URL(path string) string { return a.router.URL(path) }

// routes maps every action. Ids captured from the path arrive as handler
// args in pattern order.
func (a *App) routes() {
	rt := a.router
	base := &Controller{app: a}

	home := &HomeController{Controller: base}
	rt.Get(`/`, home.Index)

	sess := &SessionController{Controller: base}
	rt.Get(`/session/login`, sess.Form)
	rt.Post(`/session/login`, sess.Login)
	rt.Post(`/session/logout`, sess.Logout)

	cats := &CategoriesController{Controller: base}
	rt.Get(`/categories/?`, cats.Index)
	rt.Get(`/categories/create`, cats.Create)
	rt.Post(`/categories/insert`, cats.Insert)
	rt.Get(`/categories/(\d+)`, cats.Show)
	rt.Get(`/categories/(\d+)/edit`, cats.Edit)
	rt.Post(`/categories/update`, cats.Update)
	rt.Get(`/categories/(\d+)/delete`, cats.Delete)
	rt.Post(`/categories/destroy`, cats.Destroy)
	rt.Post(`/categories/delete-ajax`, cats.DeleteAjax)

	series := &SeriesController{Controller: base}
	rt.Get(`/series/?`, series.Index)
	rt.Get(`/series/create`, series.Create)
	rt.Post(`/series/insert`, series.Insert)
	rt.Get(`/series/(\d+)/edit`, series.Edit)
	rt.Post(`/series/update`, series.Update)
	rt.Get(`/series/(\d+)/delete`, series.Delete)
	rt.Post(`/series/destroy`, series.Destroy)
	rt.Post(`/series/(\d+)/toggle-status`, series.ToggleStatus)
	rt.Post(`/series/activate`, series.Activate)
	rt.Post(`/series/deactivate`, series.Deactivate)
	rt.Post(`/series/delete-ajax`, series.DeleteAjax)

	posts := &PostsController{Controller: base}
	rt.Get(`/posts/?`, posts.Index)
	rt.Get(`/posts/create`, posts.Create)
	rt.Post(`/posts/insert`, posts.Insert)
	rt.Get(`/posts/(\d+)`, posts.Show)
	rt.Get(`/posts/(\d+)/edit`, posts.Edit)
	rt.Post(`/posts/update`, posts.Update)
	rt.Get(`/posts/(\d+)/delete`, posts.Delete)
	rt.Post(`/posts/destroy`, posts.Destroy)
	rt.Post(`/posts/(\d+)/toggle-status`, posts.ToggleStatus)
	rt.Post(`/posts/activate`, posts.Activate)
	rt.Post(`/posts/deactivate`, posts.Deactivate)
	rt.Post(`/posts/delete-ajax`, posts.DeleteAjax)

	images := &ImagesController{Controller: base}
	rt.Get(`/posts/(\d+)/images/?`, images.Index)
	rt.Post(`/posts/(\d+)/images/upload`, images.Upload)
	rt.Post(`/posts/(\d+)/images/(\d+)/destroy`, images.Destroy)
	rt.Post(`/posts/(\d+)/images/(\d+)/position`, images.Reorder)
	rt.Post(`/posts/(\d+)/images/(\d+)/caption`, images.Caption)

	users := &UsersController{Controller: base}
	rt.Get(`/users/?`, users.Index)
	rt.Get(`/users/create`, users.Create)
	rt.Post(`/users/insert`, users.Insert)
	rt.Get(`/users/(\d+)/edit`, users.Edit)
	rt.Post(`/users/update`, users.Update)
	rt.Get(`/users/(\d+)/delete`, users.Delete)
	rt.Post(`/users/destroy`, users.Destroy)
	rt.Post(`/users/(\d+)/toggle-status`, users.ToggleStatus)
	rt.Post(`/users/activate`, users.Activate)
	rt.Post(`/users/deactivate`, users.Deactivate)
	rt.Post(`/users/delete-ajax`, users.DeleteAjax)
}

// classify maps domain errors to pages. Database errors only show their
// text when dev.debug is on.
func (a *App) classify(err error) (int, string) {
	switch {
	case errors.Is(err, mapper.ErrNotFound):
		return http.StatusNotFound, "Page not found."
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "Permission denied."
	case errors.Is(err, ErrInvalidToken):
		return http.StatusBadRequest, "The request could not be processed. Reload the page and try again."
	case store.IsDatabaseError(err):
		if a.cfg.Dev.Debug {
			return http.StatusInternalServerError, err.Error()
		}
		return http.StatusInternalServerError, genericError
	}
	return 0, ""
}

// renderError writes the error page, or a JSON reply for AJAX requests.
func (a *App) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isAjax(r) {
		writeJSON(w, status, Reply{Error: message})
		return
	}
	page := &Page{
		Title:   http.StatusText(status),
		User:    auth.UserFromContext(r.Context()),
		Data:    errorData{Status: status, Message: message},
		BaseURL: a.URL(""),
	}
	if sess := session.FromContext(r.Context()); sess != nil {
		page.Token = sess.Token()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := a.views.Render(w, "error", page); err != nil {
		a.logger.Error("error page failed", logging.Error(err))
		_, _ = fmt.Fprintln(w, message)
	}
}

type errorData struct {
	Status  int
	Message string
}
