package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"lsm/internal/logging"
)

func newTestRouter(base string) (*Router, *[]string) {
	var calls []string
	rt := New(Options{BasePath: base, Logger: logging.NewNop()})
	record := func(name string) Handler {
		return func(w http.ResponseWriter, r *http.Request, args ...string) error {
			calls = append(calls, fmt.Sprintf("%s%v", name, args))
			w.WriteHeader(http.StatusOK)
			return nil
		}
	}
	rt.Get(`/`, record("home"))
	rt.Get(`/series/?`, record("series.index"))
	rt.Get(`/series/(\d+)/edit`, record("series.edit"))
	rt.Post(`/series/(\d+)/edit`, record("series.update"))
	rt.Post(`/series/delete-ajax`, record("series.deleteAjax"))
	rt.Get(`/posts/(\d+)/images/(\d+)`, record("images.show"))
	rt.Map(`/session/logout`, nil, record("logout"))
	return rt, &calls
}

func TestDispatchPassesCaptureGroups(t *testing.T) {
	rt, calls := newTestRouter("/admin")
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/admin"},
		{http.MethodGet, "/admin/series"},
		{http.MethodGet, "/admin/series/"},
		{http.MethodGet, "/admin/series/12/edit"},
		{http.MethodPost, "/admin/series/12/edit"},
		{http.MethodHead, "/admin/posts/3/images/9"},
		{http.MethodDelete, "/admin/session/logout"},
	} {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s: status %d", tc.method, tc.path, rec.Code)
		}
	}
	want := []string{
		"home[]",
		"series.index[]",
		"series.index[]",
		"series.edit[12]",
		"series.update[12]",
		"images.show[3 9]",
		"logout[]",
	}
	if diff := cmp.Diff(want, *calls); diff != "" {
		t.Fatalf("dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmatchedAndWrongMethod(t *testing.T) {
	rt, calls := newTestRouter("/admin")

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/series/abc/edit", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-numeric id, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere/series", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/series/delete-ajax", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("Allow = %q", got)
	}
	if len(*calls) != 0 {
		t.Fatalf("no handler should run, got %v", *calls)
	}
}

func TestHandlerErrorsAreClassified(t *testing.T) {
	rt := New(Options{Logger: logging.NewNop()})
	rt.Get(`/denied`, func(http.ResponseWriter, *http.Request, ...string) error {
		return fmt.Errorf("edit series: %w", Errorf(http.StatusForbidden, "Permission denied."))
	})
	rt.Get(`/missing`, func(http.ResponseWriter, *http.Request, ...string) error {
		return Errorf(http.StatusNotFound, "Page not found.")
	})
	rt.Get(`/teapot`, func(http.ResponseWriter, *http.Request, ...string) error {
		return Errorf(http.StatusTeapot, "short and stout")
	})
	rt.Get(`/boom`, func(http.ResponseWriter, *http.Request, ...string) error { return errors.New("series not found") })

	cases := map[string]struct {
		status int
		body   string
	}{
		"/denied":  {http.StatusForbidden, "Permission denied."},
		"/missing": {http.StatusNotFound, "Page not found."},
		"/teapot":  {http.StatusTeapot, "short and stout"},
		"/boom":    {http.StatusInternalServerError, "series not found"},
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want.status || !strings.Contains(rec.Body.String(), want.body) {
			t.Errorf("%s: got %d %q, want %d %q", path, rec.Code, rec.Body.String(), want.status, want.body)
		}
	}
}

func TestCustomClassifierAndRenderer(t *testing.T) {
	dbErr := errors.New("constraint failed")
	var rendered []int
	rt := New(Options{
		Logger: logging.NewNop(),
		Classify: func(err error) (int, string) {
			if errors.Is(err, dbErr) {
				return http.StatusInternalServerError, "An error occurred."
			}
			return 0, ""
		},
		Render: func(w http.ResponseWriter, _ *http.Request, status int, message string) {
			rendered = append(rendered, status)
			w.WriteHeader(status)
			_, _ = w.Write([]byte("<p>" + message + "</p>"))
		},
	})
	rt.Get(`/db`, func(http.ResponseWriter, *http.Request, ...string) error { return dbErr })
	rt.Get(`/denied`, func(http.ResponseWriter, *http.Request, ...string) error {
		return Errorf(http.StatusForbidden, "Permission denied.")
	})

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/db", nil))
	if rec.Body.String() != "<p>An error occurred.</p>" {
		t.Fatalf("db error leaked: %q", rec.Body.String())
	}
	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/denied", nil))
	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if diff := cmp.Diff([]int{500, 403, 404}, rendered); diff != "" {
		t.Fatalf("render calls mismatch:\n%s", diff)
	}
}

func TestRoutesListing(t *testing.T) {
	rt, _ := newTestRouter("/admin/")
	if rt.BasePath() != "/admin" || rt.URL("series/1/edit") != "/admin/series/1/edit" {
		t.Fatalf("unexpected base handling: %q %q", rt.BasePath(), rt.URL("series/1/edit"))
	}
	routes := rt.Routes()
	want := []Route{
		{Pattern: `/`, Methods: []string{"GET"}},
		{Pattern: `/series/?`, Methods: []string{"GET"}},
		{Pattern: `/series/(\d+)/edit`, Methods: []string{"GET"}},
		{Pattern: `/series/(\d+)/edit`, Methods: []string{"POST"}},
		{Pattern: `/series/delete-ajax`, Methods: []string{"POST"}},
		{Pattern: `/posts/(\d+)/images/(\d+)`, Methods: []string{"GET"}},
		{Pattern: `/session/logout`, Methods: []string{}},
	}
	if diff := cmp.Diff(want, routes, cmpopts.IgnoreUnexported(Route{}), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("routes mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchReportsPattern(t *testing.T) {
	rt, _ := newTestRouter("/admin")
	got := map[string]string{}
	for _, path := range []string{"/admin", "/admin/series/3/edit", "/admin/posts/1/images/2", "/admin/nope", "/elsewhere"} {
		got[path] = rt.Match(path)
	}
	want := map[string]string{
		"/admin":                  `/`,
		"/admin/series/3/edit":    `/series/(\d+)/edit`,
		"/admin/posts/1/images/2": `/posts/(\d+)/images/(\d+)`,
		"/admin/nope":             "",
		"/elsewhere":              "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Match mismatch (-want +got):\n%s", diff)
	}
}
