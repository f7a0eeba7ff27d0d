package content

import (
	"context"
	"fmt"

	"lsm/internal/mapper"
	"lsm/internal/store"
)

// CategoryMapper persists categories.
type CategoryMapper struct {
	m *mapper.Mapper
}

// NewCategoryMapper binds a CategoryMapper to m.
func NewCategoryMapper(m *mapper.Mapper) *CategoryMapper {
	return &CategoryMapper{m: m}
}

const categorySelect = `
    SELECT c.*, (SELECT COUNT(1) FROM posts p WHERE p.category_id = c.id) AS post_count
    FROM categories c`

// Index lists one page of categories ordered by name.
func (cm *CategoryMapper) Index(ctx context.Context, p mapper.Pagination) ([]Category, mapper.Pagination, error) {
	s := cm.m.Store()
	total, err := mapper.Count(ctx, s, "SELECT COUNT(1) FROM categories")
	if err != nil {
		return nil, p, fmt.Errorf("count categories: %w", err)
	}
	p = p.WithTotal(total)
	items, err := mapper.Select[Category](ctx, s, categorySelect+" ORDER BY c.name LIMIT ? OFFSET ?", p.Limit(), p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("list categories: %w", err)
	}
	return items, p, nil
}

// All lists every category by name, for select boxes.
func (cm *CategoryMapper) All(ctx context.Context) ([]Category, error) {
	return mapper.Select[Category](ctx, cm.m.Store(), categorySelect+" ORDER BY c.name")
}

// Find loads one category with its post count.
func (cm *CategoryMapper) Find(ctx context.Context, id int64) (*Category, error) {
	c, err := mapper.Get[Category](ctx, cm.m.Store(), categorySelect+" WHERE c.id = ?", id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// NameTaken reports whether another category already uses name.
func (cm *CategoryMapper) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	n, err := mapper.Count(ctx, cm.m.Store(), "SELECT COUNT(1) FROM categories WHERE LOWER(name) = LOWER(?) AND id <> ?", name, excludeID)
	return n > 0, err
}

// Save inserts or fully updates c, deriving its slug from the name.
func (cm *CategoryMapper) Save(ctx context.Context, c *Category) error {
	return cm.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		slug, err := uniqueSlug(ctx, tx, TableCategories, c.Name, "category", c.ID)
		if err != nil {
			return err
		}
		c.Slug = slug
		c.UpdatedAt = cm.m.Now()
		return cm.m.SaveWith(ctx, tx, c, true)
	})
}

// CountPosts returns how many posts reference the category.
func (cm *CategoryMapper) CountPosts(ctx context.Context, id int64) (int64, error) {
	return mapper.Count(ctx, cm.m.Store(), "SELECT COUNT(1) FROM posts WHERE category_id = ?", id)
}

// PostsByCategory lists the category's posts, newest first.
func (cm *CategoryMapper) PostsByCategory(ctx context.Context, id int64) ([]Post, error) {
	return mapper.Select[Post](ctx, cm.m.Store(), postSelect+" WHERE p.category_id = ? ORDER BY p.created_at DESC, p.id DESC", id)
}

// Destroy deletes a category unless posts still reference it.
func (cm *CategoryMapper) Destroy(ctx context.Context, id int64) error {
	return cm.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		n, err := mapper.Count(ctx, tx, "SELECT COUNT(1) FROM posts WHERE category_id = ?", id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d post(s)", ErrCategoryInUse, n)
		}
		return mapper.DestroyWith(ctx, tx, &Category{ID: id})
	})
}

// DeleteMany deletes every id, or none when any is missing or still in use.
func (cm *CategoryMapper) DeleteMany(ctx context.Context, ids []int64) error {
	ids = mapper.UniqueIDs(ids)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids given", mapper.ErrMissingKey)
	}
	return cm.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		in := mapper.Placeholders(len(ids))
		n, err := mapper.Count(ctx, tx, "SELECT COUNT(1) FROM posts WHERE category_id IN ("+in+")", mapper.IDArgs(ids)...)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d post(s)", ErrCategoryInUse, n)
		}
		return mapper.ExecAll(ctx, tx, "DELETE FROM categories WHERE id IN ("+in+")", mapper.IDArgs(ids), len(ids))
	})
}
