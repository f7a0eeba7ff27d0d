package content

import (
	"context"
	"fmt"
	"strings"

	"lsm/internal/mapper"
	"lsm/internal/store"
)

// PostMapper persists posts.
type PostMapper struct {
	m *mapper.Mapper
}

// NewPostMapper binds a PostMapper to m.
func NewPostMapper(m *mapper.Mapper) *PostMapper {
	return &PostMapper{m: m}
}

const postSelect = `
    SELECT p.*,
        c.name AS category_name,
        s.title AS series_title,
        u.name AS author_name,
        (SELECT COUNT(1) FROM images i WHERE i.post_id = p.id) AS image_count
    FROM posts p
    JOIN categories c ON c.id = p.category_id
    LEFT JOIN series s ON s.id = p.series_id
    LEFT JOIN users u ON u.id = p.author_id`

// PostFilter narrows Index. Zero values match everything.
type PostFilter struct {
	CategoryID int64
	SeriesID   int64
	Status     *bool
	Search     string
}

func (f PostFilter) where(d store.Dialect) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.CategoryID > 0 {
		conds = append(conds, "p.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.SeriesID > 0 {
		conds = append(conds, "p.series_id = ?")
		args = append(args, f.SeriesID)
	}
	if f.Status != nil {
		conds = append(conds, "p.status = ?")
		args = append(args, *f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		conds = append(conds, "("+d.ILike("p.title")+" OR "+d.ILike("p.intro")+")")
		like := "%" + term + "%"
		args = append(args, like, like)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Index lists one page of posts matching f, newest first.
func (pm *PostMapper) Index(ctx context.Context, p mapper.Pagination, f PostFilter) ([]Post, mapper.Pagination, error) {
	s := pm.m.Store()
	where, args := f.where(s.Dialect())
	total, err := mapper.Count(ctx, s, "SELECT COUNT(1) FROM posts p"+where, args...)
	if err != nil {
		return nil, p, fmt.Errorf("count posts: %w", err)
	}
	p = p.WithTotal(total)
	query := postSelect + where + " ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	items, err := mapper.Select[Post](ctx, s, query, append(args, p.Limit(), p.Offset())...)
	if err != nil {
		return nil, p, fmt.Errorf("list posts: %w", err)
	}
	return items, p, nil
}

// Find loads one post with its category, series and author names.
func (pm *PostMapper) Find(ctx context.Context, id int64) (*Post, error) {
	p, err := mapper.Get[Post](ctx, pm.m.Store(), postSelect+" WHERE p.id = ?", id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// BySlug loads one post by slug.
func (pm *PostMapper) BySlug(ctx context.Context, slug string) (*Post, error) {
	p, err := mapper.Get[Post](ctx, pm.m.Store(), postSelect+" WHERE p.slug = ?", slug)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save inserts or fully updates p, deriving its slug from the title.
func (pm *PostMapper) Save(ctx context.Context, p *Post) error {
	return pm.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		slug, err := uniqueSlug(ctx, tx, TablePosts, p.Title, "post", p.ID)
		if err != nil {
			return err
		}
		p.Slug = slug
		p.UpdatedAt = pm.m.Now()
		return pm.m.SaveWith(ctx, tx, p, true)
	})
}

// Destroy deletes one post; its image rows cascade.
func (pm *PostMapper) Destroy(ctx context.Context, id int64) error {
	return pm.m.Destroy(ctx, &Post{ID: id})
}

// ToggleStatus flips a post between published and draft.
func (pm *PostMapper) ToggleStatus(ctx context.Context, id int64) (bool, error) {
	return pm.m.ToggleStatus(ctx, TablePosts, id)
}

// Activate publishes every id.
func (pm *PostMapper) Activate(ctx context.Context, ids []int64) error {
	return pm.m.SetStatus(ctx, TablePosts, ids, true)
}

// Deactivate unpublishes every id.
func (pm *PostMapper) Deactivate(ctx context.Context, ids []int64) error {
	return pm.m.SetStatus(ctx, TablePosts, ids, false)
}

// DeleteMany deletes every id or none.
func (pm *PostMapper) DeleteMany(ctx context.Context, ids []int64) error {
	return pm.m.DeleteMany(ctx, TablePosts, ids)
}
