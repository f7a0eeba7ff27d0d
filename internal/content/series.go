package content

import (
	"context"
	"fmt"

	"lsm/internal/mapper"
	"lsm/internal/store"
)

// SeriesMapper persists series.
type SeriesMapper struct {
	m *mapper.Mapper
}

// NewSeriesMapper binds a SeriesMapper to m.
func NewSeriesMapper(m *mapper.Mapper) *SeriesMapper {
	return &SeriesMapper{m: m}
}

const seriesSelect = `
    SELECT s.*, (SELECT COUNT(1) FROM posts p WHERE p.series_id = s.id) AS post_count
    FROM series s`

// Index lists one page of series, newest first.
func (sm *SeriesMapper) Index(ctx context.Context, p mapper.Pagination) ([]Series, mapper.Pagination, error) {
	s := sm.m.Store()
	total, err := mapper.Count(ctx, s, "SELECT COUNT(1) FROM series")
	if err != nil {
		return nil, p, fmt.Errorf("count series: %w", err)
	}
	p = p.WithTotal(total)
	items, err := mapper.Select[Series](ctx, s, seriesSelect+" ORDER BY s.created_at DESC, s.id DESC LIMIT ? OFFSET ?", p.Limit(), p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("list series: %w", err)
	}
	return items, p, nil
}

// Active lists active series by title, for select boxes.
func (sm *SeriesMapper) Active(ctx context.Context) ([]Series, error) {
	return mapper.Select[Series](ctx, sm.m.Store(), seriesSelect+" WHERE s.status = ? ORDER BY s.title", true)
}

// Find loads one series.
func (sm *SeriesMapper) Find(ctx context.Context, id int64) (*Series, error) {
	s, err := mapper.Get[Series](ctx, sm.m.Store(), seriesSelect+" WHERE s.id = ?", id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save inserts or fully updates s, deriving its slug from the title.
func (sm *SeriesMapper) Save(ctx context.Context, s *Series) error {
	return sm.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		slug, err := uniqueSlug(ctx, tx, TableSeries, s.Title, "series", s.ID)
		if err != nil {
			return err
		}
		s.Slug = slug
		s.UpdatedAt = sm.m.Now()
		return sm.m.SaveWith(ctx, tx, s, true)
	})
}

// Destroy deletes one series; its posts keep existing without a series.
func (sm *SeriesMapper) Destroy(ctx context.Context, id int64) error {
	return sm.m.Destroy(ctx, &Series{ID: id})
}

// ToggleStatus flips a series between active and inactive.
func (sm *SeriesMapper) ToggleStatus(ctx context.Context, id int64) (bool, error) {
	return sm.m.ToggleStatus(ctx, TableSeries, id)
}

// Activate marks every id active.
func (sm *SeriesMapper) Activate(ctx context.Context, ids []int64) error {
	return sm.m.SetStatus(ctx, TableSeries, ids, true)
}

// Deactivate marks every id inactive.
func (sm *SeriesMapper) Deactivate(ctx context.Context, ids []int64) error {
	return sm.m.SetStatus(ctx, TableSeries, ids, false)
}

// DeleteMany deletes every id or none.
func (sm *SeriesMapper) DeleteMany(ctx context.Context, ids []int64) error {
	return sm.m.DeleteMany(ctx, TableSeries, ids)
}
