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

// CategoriesController manages categories. Reading is open to every user;
// writes need edit_categories.
type CategoriesController struct {
	*Controller
}

type categoryList struct {
	Items      []content.Category
	Pagination mapper.Pagination
	EditCat    bool
}

type categoryShow struct {
	Category *content.Category
	Posts    []content.Post
}

// Index lists categories, one page at a time.
func (c *CategoriesController) Index(w http.ResponseWriter, r *http.Request, _ ...string) error {
	p := mapper.NewPagination(pageNumber(r), c.app.cfg.Server.PerPage)
	items, p, err := c.app.categories.Index(r.Context(), p)
	if err != nil {
		return err
	}
	data := categoryList{Items: items, Pagination: p, EditCat: c.User(r).HasPrivilege(auth.PrivEditCategories)}
	return c.Render(w, "categories/index", c.NewPage(r, "Categories", "categories", data))
}

// Create shows the empty form.
func (c *CategoriesController) Create(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditCategories); err != nil {
		return err
	}
	return c.Render(w, "categories/form", c.NewPage(r, "New category", "categories", &content.Category{}))
}

// Insert validates and stores a new category.
func (c *CategoriesController) Insert(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.save(w, r, 0)
}

// Show lists a category's posts.
func (c *CategoriesController) Show(w http.ResponseWriter, r *http.Request, args ...string) error {
	cat, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	posts, err := c.app.categories.PostsByCategory(r.Context(), cat.ID)
	if err != nil {
		return err
	}
	return c.Render(w, "categories/show", c.NewPage(r, cat.Name, "categories", categoryShow{Category: cat, Posts: posts}))
}

// Edit shows the form for an existing category.
func (c *CategoriesController) Edit(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditCategories); err != nil {
		return err
	}
	cat, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.Render(w, "categories/form", c.NewPage(r, "Edit category", "categories", cat))
}

// Update validates and stores changes; the id comes from the form.
func (c *CategoriesController) Update(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	return c.save(w, r, id)
}

func (c *CategoriesController) save(w http.ResponseWriter, r *http.Request, id int64) error {
	if err := c.Require(r, auth.PrivEditCategories); err != nil {
		return err
	}
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := "categories/create"
	if id != 0 {
		back = fmt.Sprintf("categories/%d/edit", id)
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}

	ctx := r.Context()
	v := validate.New()
	v.Check(form, content.CategoryRules)
	name := strings.TrimSpace(form.Get("name"))
	if name != "" {
		taken, err := c.app.categories.NameTaken(ctx, name, id)
		if err != nil {
			return err
		}
		if taken {
			v.Add("name", "Name is already in use")
		}
	}
	if !v.Valid() {
		return c.Invalid(w, r, v, back)
	}

	if id != 0 {
		if _, err := c.app.categories.Find(ctx, id); err != nil {
			return err
		}
	}
	cat := &content.Category{ID: id, Name: name, Description: strings.TrimSpace(form.Get("description"))}
	if err := c.app.categories.Save(ctx, cat); err != nil {
		return err
	}
	if id == 0 {
		return c.Success(w, r, "Category created.", "categories/")
	}
	return c.Success(w, r, "Category updated.", "categories/")
}

// Delete asks for confirmation.
func (c *CategoriesController) Delete(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditCategories); err != nil {
		return err
	}
	cat, err := c.find(r, args[0])
	if err != nil {
		return err
	}
	return c.Render(w, "categories/delete", c.NewPage(r, "Delete category", "categories", cat))
}

// Destroy deletes a category that has no posts.
func (c *CategoriesController) Destroy(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditCategories); err != nil {
		return err
	}
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", "categories/")
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	err = c.app.categories.Destroy(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrCategoryInUse):
		return c.Fail(w, r, "The category has posts and cannot be deleted.", "categories/")
	case errors.Is(err, mapper.ErrNotFound):
		return c.Fail(w, r, "The category no longer exists.", "categories/")
	case err != nil:
		return err
	}
	return c.Success(w, r, "Category deleted.", "categories/")
}

// DeleteAjax deletes the selected categories, all or none.
func (c *CategoriesController) DeleteAjax(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditCategories, "Could not delete the categories.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: "Categories deleted."}
		if err := c.app.categories.DeleteMany(r.Context(), ids); err != nil {
			if errors.Is(err, content.ErrCategoryInUse) {
				err = shown("Categories with posts cannot be deleted.", err)
			}
			return reply, err
		}
		c.Session(r).Flash(flashSuccess, reply.Success)
		return reply, nil
	})
}

func (c *CategoriesController) find(r *http.Request, raw string) (*content.Category, error) {
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return c.app.categories.Find(r.Context(), id)
}
