package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"lsm/internal/config"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/preflight"
	"lsm/internal/session"
	"lsm/internal/store"
	"lsm/internal/uploads"
	"lsm/internal/web"
)

const shutdownTimeout = 5 * time.Second

// ErrAlreadyRunning is returned when another server holds the data
// directory lock.
var ErrAlreadyRunning = errors.New("another lsm server is already running")

// Server is the admin panel HTTP server.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	app      *web.App
	sessions *session.Manager
	uploads  *uploads.Store
	metrics  *metrics
	base     string
	lock     *flock.Flock

	handler    http.Handler
	httpServer *http.Server
}

// New wires the web application and its collaborators on st.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("server requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := mapper.New(st)
	sessions := session.NewManager(m, session.Options{
		TTL:    cfg.SessionTTL(),
		Secure: cfg.Server.SecureCookies,
		Path:   cfg.Server.BasePath + "/",
	}, logger)
	up := uploads.New(cfg, logger)

	app, err := web.New(web.Deps{
		Config:   cfg,
		Logger:   logger,
		Mapper:   m,
		Sessions: sessions,
		Uploads:  up,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "server"),
		store:    st,
		app:      app,
		sessions: sessions,
		uploads:  up,
		base:     strings.TrimRight(cfg.Server.BasePath, "/"),
	}
	if cfg.Server.Metrics {
		s.metrics = newMetrics()
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// Handler is the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// App exposes the web application.
func (s *Server) App() *web.App { return s.app }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.handler())
	}
	mux.Handle(s.base+"/static/", http.StripPrefix(s.base+"/static/", http.FileServerFS(web.Static())))
	mux.Handle(s.base+"/uploads/", http.StripPrefix(s.base+"/uploads/", noListing(http.FileServer(http.Dir(s.uploads.Root())))))
	if s.base == "" {
		mux.Handle("/", s.app.Handler())
	} else {
		mux.Handle(s.base, s.app.Handler())
		mux.Handle(s.base+"/", s.app.Handler())
		mux.Handle("/", http.NotFoundHandler())
	}

	var h http.Handler = mux
	h = s.withAccessLog(h)
	h = s.withRequestID(h)
	h = s.withRecover(h)
	return h
}

// noListing hides directory indexes.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AcquireLock takes the data directory lock at path. Callers that need the
// lock before building a Server hand it over with HoldLock.
func AcquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// HoldLock makes Run use an already acquired lock. The caller releases it.
func (s *Server) HoldLock(lock *flock.Flock) { s.lock = lock }

// Run takes the instance lock unless one is held, checks the environment,
// binds the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.lock == nil {
		lock, err := AcquireLock(s.cfg.LockPath())
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				s.logger.Warn("failed to release server lock", logging.Error(err))
			}
		}()
	}

	results := preflight.RunAll(ctx, s.cfg, s.store)
	for _, r := range results {
		attrs := logging.Args(
			logging.String(logging.FieldEventType, "preflight"),
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		)
		if r.Passed {
			s.logger.Debug("preflight check", attrs...)
		} else {
			s.logger.Warn("preflight check", attrs...)
		}
	}
	if err := preflight.Summarize(results); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the session sweeper and,
// in development, the template reloader. It returns once all of them have
// stopped.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("admin panel listening",
			logging.String(logging.FieldEventType, "listening"),
			logging.String("address", ln.Addr().String()),
			logging.String("base_path", s.base+"/"))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed", logging.Error(err))
			return s.httpServer.Close()
		}
		return nil
	})
	g.Go(func() error {
		return session.NewSweeper(s.sessions, "", s.logger).Run(ctx)
	})
	if s.cfg.Dev.ReloadTemplates {
		g.Go(func() error {
			return s.app.Views().Watch(ctx, s.cfg.Dev.TemplateDir)
		})
	}

	err := g.Wait()
	s.logger.Info("admin panel stopped", logging.String(logging.FieldEventType, "stopped"))
	return err
}
