package web

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"lsm/internal/markup"
	"lsm/internal/mapper"
	"lsm/internal/uploads"
	"lsm/internal/validate"
)

// funcs builds the template helpers. url, static and upload resolve against
// the configured base path.
func (a *App) funcs() template.FuncMap {
	return template.FuncMap{
		"url":    a.URL,
		"static": func(p string) string { return a.URL("static/" + strings.TrimLeft(p, "/")) },
		"upload": func(postID, imageID int64, ext string) string {
			return a.URL("uploads/" + uploads.RelPath(postID, imageID, ext))
		},
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return humanize.Time(t)
		},
		"agoPtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "never"
			}
			return humanize.Time(*t)
		},
		"date":     func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
		"comma":    humanize.Comma,
		"bytes":    func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
		"plural":   func(n int64, one, many string) string { return english.PluralWord(int(n), one, many) },
		"markdown": markup.Render,
		"excerpt":  markup.Excerpt,
		"label":    validate.Label,
		"pager":    a.pager,
		"bulk": func(section string, status bool) bulkView {
			return bulkView{Section: section, Status: status}
		},
		"toggle": func(section string, id int64, on, editable bool) statusView {
			return statusView{URL: a.URL(fmt.Sprintf("%s/%d/toggle-status", section, id)), On: on, Editable: editable}
		},
		"add":      func(a, b int) int { return a + b },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefID": func(id *int64) int64 {
			if id == nil {
				return 0
			}
			return *id
		},
	}
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

type pagerView struct {
	Pagination mapper.Pagination
	Links      []pageLink
	Prev       string
	Next       string
}

// pager builds the pagination links for a list at path. query holds the
// list's filters and is kept on every link.
func (a *App) pager(p mapper.Pagination, path, query string) pagerView {
	link := func(n int) string {
		v, _ := url.ParseQuery(query)
		if v == nil {
			v = url.Values{}
		}
		v.Set("page", strconv.Itoa(n))
		return a.URL(path) + "?" + v.Encode()
	}
	view := pagerView{Pagination: p}
	for _, n := range p.Window(7) {
		view.Links = append(view.Links, pageLink{Number: n, URL: link(n), Current: n == p.Page})
	}
	if p.HasPrev() {
		view.Prev = link(p.Prev())
	}
	if p.HasNext() {
		view.Next = link(p.Next())
	}
	return view
}

type bulkView struct {
	Section string
	Status  bool
}

type statusView struct {
	URL      string
	On       bool
	Editable bool
}
