package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/content"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/validate"
)

// PostsController manages posts. Every write needs edit_contents.
type PostsController struct {
	*Controller
}

type postList struct {
	Items        []content.Post
	Pagination   mapper.Pagination
	Filter       postFilterForm
	Query        string
	Categories   []content.Category
	Series       []content.Series
	EditContents bool
}

// postFilterForm echoes the filter inputs back into the search form.
type postFilterForm struct {
	Category int64
	Series   int64
	Status   string
	Search   string
}

type postForm struct {
	Post       *content.Post
	Categories []content.Category
	Series     []content.Series
}

type postShow struct {
	Post  *content.Post
	Cover *content.Image
}

// Index lists posts with optional category, series, status and text filters.
func (c *PostsController) Index(w http.ResponseWriter, r *http.Request, _ ...string) error {
	ctx := r.Context()
	q := r.URL.Query()
	form := postFilterForm{Status: q.Get("status"), Search: strings.TrimSpace(q.Get("q"))}
	form.Category, _ = strconv.ParseInt(q.Get("category"), 10, 64)
	form.Series, _ = strconv.ParseInt(q.Get("series"), 10, 64)

	filter := content.PostFilter{CategoryID: form.Category, SeriesID: form.Series, Search: form.Search}
	switch form.Status {
	case "1", "0":
		status := form.Status == "1"
		filter.Status = &status
	default:
		form.Status = ""
	}

	p := mapper.NewPagination(pageNumber(r), c.app.cfg.Server.PerPage)
	items, p, err := c.app.posts.Index(ctx, p, filter)
	if err != nil {
		return err
	}
	cats, err := c.app.categories.All(ctx)
	if err != nil {
		return err
	}
	series, err := c.app.series.Active(ctx)
	if err != nil {
		return err
	}
	data := postList{
		Items:        items,
		Pagination:   p,
		Filter:       form,
		Query:        filterQuery(form),
		Categories:   cats,
		Series:       series,
		EditContents: c.User(r).HasPrivilege(auth.PrivEditContents),
	}
	return c.Render(w, "posts/index", c.NewPage(r, "Posts", "posts", data))
}

// filterQuery rebuilds the filter part of the query string for pagination
// links.
func filterQuery(f postFilterForm) string {
	v := url.Values{}
	if f.Category > 0 {
		v.Set("category", strconv.FormatInt(f.Category, 10))
	}
	if f.Series > 0 {
		v.Set("series", strconv.FormatInt(f.Series, 10))
	}
	if f.Status != "" {
		v.Set("status", f.Status)
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	return v.Encode()
}

// Show previews a post with its rendered body.
func (c *PostsController) Show(w http.ResponseWriter, r *http.Request, args ...string) error {
	post, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	data := postShow{Post: post}
	cover, err := c.app.images.FindByPost(r.Context(), post.ID)
	switch {
	case err == nil:
		data.Cover = cover
	case !errors.Is(err, mapper.ErrNotFound):
		return err
	}
	return c.Render(w, "posts/show", c.NewPage(r, post.Title, "posts", data))
}

// Create shows the empty form.
func (c *PostsController) Create(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	return c.renderForm(w, r, "New post", &content.Post{})
}

// Edit shows the form for an existing post.
func (c *PostsController) Edit(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	post, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.renderForm(w, r, "Edit post", post)
}

func (c *PostsController) renderForm(w http.ResponseWriter, r *http.Request, title string, post *content.Post) error {
	ctx := r.Context()
	cats, err := c.app.categories.All(ctx)
	if err != nil {
		return err
	}
	series, err := c.app.series.Active(ctx)
	if err != nil {
		return err
	}
	// Keep an inactive series selectable for posts already in it.
	if post.SeriesID != nil && !containsSeries(series, *post.SeriesID) {
		if s, err := c.app.series.Find(ctx, *post.SeriesID); err == nil {
			series = append(series, *s)
		}
	}
	data := postForm{Post: post, Categories: cats, Series: series}
	return c.Render(w, "posts/form", c.NewPage(r, title, "posts", data))
}

func containsSeries(list []content.Series, id int64) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Insert validates and stores a new post authored by the current user.
func (c *PostsController) Insert(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.save(w, r, 0)
}

// Update validates and stores changes; the id comes from the form.
func (c *PostsController) Update(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	return c.save(w, r, id)
}

func (c *PostsController) save(w http.ResponseWriter, r *http.Request, id int64) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := "posts/create"
	if id != 0 {
		back = fmt.Sprintf("posts/%d/edit", id)
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}

	ctx := r.Context()
	v := validate.New()
	v.Check(form, content.PostRules)
	categoryID, _ := strconv.ParseInt(form.Get("category_id"), 10, 64)
	seriesID := optionalID(r, "series_id")
	if v.Valid() {
		if err := c.checkRefs(ctx, v, categoryID, seriesID); err != nil {
			return err
		}
	}
	if !v.Valid() {
		return c.Invalid(w, r, v, back)
	}

	post := &content.Post{
		ID:         id,
		CategoryID: categoryID,
		SeriesID:   seriesID,
		Title:      strings.TrimSpace(form.Get("title")),
		Intro:      strings.TrimSpace(form.Get("intro")),
		Body:       form.Get("body"),
		Status:     formBool(r, "status"),
	}
	if id == 0 {
		author := c.User(r).ID
		post.AuthorID = &author
	} else {
		existing, err := c.app.posts.Find(ctx, id)
		if err != nil {
			return err
		}
		post.AuthorID = existing.AuthorID
	}
	if err := c.app.posts.Save(ctx, post); err != nil {
		return err
	}
	if id == 0 {
		return c.Success(w, r, "Post created.", "posts/")
	}
	return c.Success(w, r, "Post updated.", "posts/")
}

// checkRefs records a validation error for a missing category or series.
func (c *PostsController) checkRefs(ctx context.Context, v *validate.Validator, categoryID int64, seriesID *int64) error {
	if _, err := c.app.categories.Find(ctx, categoryID); err != nil {
		if !errors.Is(err, mapper.ErrNotFound) {
			return err
		}
		v.Add("category_id", "Category does not exist")
	}
	if seriesID != nil {
		if _, err := c.app.series.Find(ctx, *seriesID); err != nil {
			if !errors.Is(err, mapper.ErrNotFound) {
				return err
			}
			v.Add("series_id", "Series does not exist")
		}
	}
	return nil
}

// Delete asks for confirmation.
func (c *PostsController) Delete(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	post, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.Render(w, "posts/delete", c.NewPage(r, "Delete post", "posts", post))
}

// Destroy deletes a post and its gallery files.
func (c *PostsController) Destroy(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", "posts/")
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	if err := c.app.posts.Destroy(r.Context(), id); err != nil {
		if errors.Is(err, mapper.ErrNotFound) {
			return c.Fail(w, r, "The post no longer exists.", "posts/")
		}
		return err
	}
	c.removeGalleries(r, id)
	return c.Success(w, r, "Post deleted.", "posts/")
}

// removeGalleries deletes image files after their rows are gone. A failure
// only leaves orphaned files, so it is logged rather than reported.
func (c *PostsController) removeGalleries(r *http.Request, ids ...int64) {
	for _, id := range ids {
		if err := c.app.uploads.RemovePost(id); err != nil {
			logging.WithContext(r.Context(), c.app.logger).Warn("gallery cleanup failed",
				logging.String(logging.FieldEventType, "gallery_cleanup_failed"),
				logging.Int64("post_id", id),
				logging.Error(err))
		}
	}
}

// ToggleStatus publishes or unpublishes one post.
func (c *PostsController) ToggleStatus(w http.ResponseWriter, r *http.Request, args ...string) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not change the status.", func() (Reply, error) {
		id, err := parseID(args[0])
		if err != nil {
			return Reply{}, err
		}
		status, err := c.app.posts.ToggleStatus(r.Context(), id)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Items: []int64{id}, Status: &status}, nil
	})
}

// Activate publishes the selected posts.
func (c *PostsController) Activate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.bulk(w, r, "Posts published.", c.app.posts.Activate)
}

// Deactivate unpublishes the selected posts.
func (c *PostsController) Deactivate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.bulk(w, r, "Posts unpublished.", c.app.posts.Deactivate)
}

// DeleteAjax deletes the selected posts and their galleries.
func (c *PostsController) DeleteAjax(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not delete the posts.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: "Posts deleted."}
		if err := c.app.posts.DeleteMany(r.Context(), ids); err != nil {
			return reply, err
		}
		c.removeGalleries(r, ids...)
		c.Session(r).Flash(flashSuccess, reply.Success)
		return reply, nil
	})
}

func (c *PostsController) bulk(w http.ResponseWriter, r *http.Request, success string, op bulkOp) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not change the status.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Items: ids, Success: success}, op(r.Context(), ids)
	})
}

func (c *PostsController) find(r *http.Request, raw string) (*content.Post, error) {
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return c.app.posts.Find(r.Context(), id)
}
