package web

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lsm/internal/logging"
)

const (
	layoutFile     = "layout.html"
	partialsGlob   = "partials/*.html"
	pagesDir       = "pages"
	reloadDebounce = 150 * time.Millisecond
)

// Views holds one parsed template set per page. Each set is the layout plus
// the partials plus the page file, so pages can redefine blocks freely.
type Views struct {
	fsys   fs.FS
	funcs  template.FuncMap
	logger *slog.Logger

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// NewViews parses every page under fsys.
func NewViews(fsys fs.FS, funcs template.FuncMap, logger *slog.Logger) (*Views, error) {
	v := &Views{fsys: fsys, funcs: funcs, logger: logging.NewComponentLogger(logger, "views")}
	if err := v.Load(); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reparses the template tree. The previous set stays active when
// parsing fails.
func (v *Views) Load() error {
	base, err := template.New(layoutFile).Funcs(v.funcs).ParseFS(v.fsys, layoutFile, partialsGlob)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	pages := make(map[string]*template.Template)
	err = fs.WalkDir(v.fsys, pagesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".html" {
			return nil
		}
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := t.ParseFS(v.fsys, p); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, pagesDir+"/"), ".html")
		pages[name] = t
		return nil
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.pages = pages
	v.mu.Unlock()
	return nil
}

// Has reports whether a page exists.
func (v *Views) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.pages[name]
	return ok
}

// Render executes page name inside the layout. Output is buffered so a
// template error never leaves a half-written page.
func (v *Views) Render(w io.Writer, name string, data any) error {
	v.mu.RLock()
	t, ok := v.pages[name]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutFile, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Watch reloads the templates whenever a file under dir changes, until ctx
// is cancelled. Bursts of events are coalesced.
func (v *Views) Watch(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}
	defer fsw.Close()

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	v.logger.Info("watching templates", logging.String("dir", dir))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("template watcher error", logging.Error(err))
		case <-fire:
			fire = nil
			if err := v.Load(); err != nil {
				v.logger.Error("template reload failed",
					logging.String(logging.FieldEventType, "template_reload_failed"),
					logging.Error(err))
				continue
			}
			v.logger.Info("templates reloaded", logging.String(logging.FieldEventType, "template_reload"))
		}
	}
}
