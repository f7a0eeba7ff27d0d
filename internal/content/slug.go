package content

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lsm/internal/markup"
	"lsm/internal/store"
)

var (
	// ErrCategoryInUse is returned when deleting a category that still has posts.
	ErrCategoryInUse = errors.New("category still has posts")
	// ErrInvalidPosition is returned for gallery moves outside 1..count or
	// from a stale position.
	ErrInvalidPosition = errors.New("invalid image position")
)

const maxSlugAttempts = 1000

// uniqueSlug derives a slug from source that no other row of table uses,
// suffixing -2, -3, ... on collision.
func uniqueSlug(ctx context.Context, q store.Querier, table, source, fallback string, excludeID int64) (string, error) {
	base := markup.Slugify(source)
	if base == "" {
		base = fallback
	}
	candidate := base
	for n := 2; n < maxSlugAttempts; n++ {
		var taken int
		query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE slug = ? AND id <> ?", table)
		if err := q.QueryRow(ctx, query, candidate, excludeID).Scan(&taken); err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if taken == 0 {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
	return "", fmt.Errorf("no free slug for %q in %s", source, table)
}
