package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/content"
	"lsm/internal/mapper"
	"lsm/internal/validate"
)

// SeriesController manages series. Every write needs edit_contents.
type SeriesController struct {
	*Controller
}

type seriesList struct {
	Items        []content.Series
	Pagination   mapper.Pagination
	EditContents bool
}

// Index lists series, one page at a time.
func (c *SeriesController) Index(w http.ResponseWriter, r *http.Request, _ ...string) error {
	p := mapper.NewPagination(pageNumber(r), c.app.cfg.Server.PerPage)
	items, p, err := c.app.series.Index(r.Context(), p)
	if err != nil {
		return err
	}
	data := seriesList{Items: items, Pagination: p, EditContents: c.User(r).HasPrivilege(auth.PrivEditContents)}
	return c.Render(w, "series/index", c.NewPage(r, "Series", "series", data))
}

// Create shows the empty form. New series start active.
func (c *SeriesController) Create(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	return c.Render(w, "series/form", c.NewPage(r, "New series", "series", &content.Series{Status: true}))
}

// Insert validates and stores a new series.
func (c *SeriesController) Insert(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.save(w, r, 0)
}

// Edit shows the form for an existing series.
func (c *SeriesController) Edit(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	s, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.Render(w, "series/form", c.NewPage(r, "Edit series", "series", s))
}

// Update validates and stores changes; the id comes from the form.
func (c *SeriesController) Update(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	return c.save(w, r, id)
}

func (c *SeriesController) save(w http.ResponseWriter, r *http.Request, id int64) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := "series/create"
	if id != 0 {
		back = fmt.Sprintf("series/%d/edit", id)
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}
	v := validate.New()
	if !v.Check(form, content.SeriesRules) {
		return c.Invalid(w, r, v, back)
	}

	ctx := r.Context()
	if id != 0 {
		if _, err := c.app.series.Find(ctx, id); err != nil {
			return err
		}
	}
	s := &content.Series{ID: id, Title: strings.TrimSpace(form.Get("title")), Status: formBool(r, "status")}
	if err := c.app.series.Save(ctx, s); err != nil {
		return err
	}
	if id == 0 {
		return c.Success(w, r, "Series created.", "series/")
	}
	return c.Success(w, r, "Series updated.", "series/")
}

// Delete asks for confirmation.
func (c *SeriesController) Delete(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	s, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.Render(w, "series/delete", c.NewPage(r, "Delete series", "series", s))
}

// Destroy deletes a series. Its posts stay and lose the reference.
func (c *SeriesController) Destroy(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", "series/")
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	if err := c.app.series.Destroy(r.Context(), id); err != nil {
		if errors.Is(err, mapper.ErrNotFound) {
			return c.Fail(w, r, "The series no longer exists.", "series/")
		}
		return err
	}
	return c.Success(w, r, "Series deleted.", "series/")
}

// ToggleStatus flips one series on or off.
func (c *SeriesController) ToggleStatus(w http.ResponseWriter, r *http.Request, args ...string) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not change the status.", func() (Reply, error) {
		id, err := parseID(args[0])
		if err != nil {
			return Reply{}, err
		}
		status, err := c.app.series.ToggleStatus(r.Context(), id)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Items: []int64{id}, Status: &status}, nil
	})
}

// Activate turns the selected series on.
func (c *SeriesController) Activate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.bulk(w, r, "Series activated.", c.app.series.Activate)
}

// Deactivate turns the selected series off.
func (c *SeriesController) Deactivate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.bulk(w, r, "Series deactivated.", c.app.series.Deactivate)
}

// DeleteAjax deletes the selected series.
func (c *SeriesController) DeleteAjax(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not delete the series.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: "Series deleted."}
		if err := c.app.series.DeleteMany(r.Context(), ids); err != nil {
			return reply, err
		}
		c.Session(r).Flash(flashSuccess, reply.Success)
		return reply, nil
	})
}

func (c *SeriesController) bulk(w http.ResponseWriter, r *http.Request, success string, op bulkOp) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not change the status.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: success}
		return reply, op(r.Context(), ids)
	})
}

func (c *SeriesController) find(r *http.Request, raw string) (*content.Series, error) {
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return c.app.series.Find(r.Context(), id)
}
