package web

import (
	"net/http"

	"lsm/internal/mapper"
)

// HomeController renders the dashboard.
type HomeController struct {
	*Controller
}

type dashboard struct {
	Categories int64
	Series     int64
	Posts      int64
	Drafts     int64
	Users      int64
	Images     int64
}

// Index shows entity counts.
func (c *HomeController) Index(w http.ResponseWriter, r *http.Request, _ ...string) error {
	ctx := r.Context()
	q := c.app.mapper.Store()
	var d dashboard
	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&d.Categories, "SELECT COUNT(1) FROM categories", nil},
		{&d.Series, "SELECT COUNT(1) FROM series", nil},
		{&d.Posts, "SELECT COUNT(1) FROM posts", nil},
		{&d.Drafts, "SELECT COUNT(1) FROM posts WHERE status = ?", []any{false}},
		{&d.Users, "SELECT COUNT(1) FROM users", nil},
		{&d.Images, "SELECT COUNT(1) FROM images", nil},
	}
	for _, cnt := range counts {
		n, err := mapper.Count(ctx, q, cnt.query, cnt.args...)
		if err != nil {
			return err
		}
		*cnt.dst = n
	}
	return c.Render(w, "home", c.NewPage(r, "Dashboard", "home", d))
}
