package content

import (
	"context"
	"errors"
	"fmt"

	"lsm/internal/mapper"
	"lsm/internal/store"
)

// ImageMapper persists gallery images and keeps their positions dense.
type ImageMapper struct {
	m *mapper.Mapper
}

// NewImageMapper binds an ImageMapper to m.
func NewImageMapper(m *mapper.Mapper) *ImageMapper {
	return &ImageMapper{m: m}
}

// Index lists a post's images by position.
func (im *ImageMapper) Index(ctx context.Context, postID int64) ([]Image, error) {
	return mapper.Select[Image](ctx, im.m.Store(), "SELECT * FROM images WHERE post_id = ? ORDER BY position", postID)
}

// Find loads one image of a post.
func (im *ImageMapper) Find(ctx context.Context, postID, id int64) (*Image, error) {
	img, err := mapper.Get[Image](ctx, im.m.Store(), "SELECT * FROM images WHERE id = ? AND post_id = ?", id, postID)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// FindByPost returns the post's first image, its cover.
func (im *ImageMapper) FindByPost(ctx context.Context, postID int64) (*Image, error) {
	img, err := mapper.Get[Image](ctx, im.m.Store(), "SELECT * FROM images WHERE post_id = ? ORDER BY position LIMIT 1", postID)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// Count returns the number of images in a post's gallery.
func (im *ImageMapper) Count(ctx context.Context, postID int64) (int64, error) {
	return mapper.Count(ctx, im.m.Store(), "SELECT COUNT(1) FROM images WHERE post_id = ?", postID)
}

// Save appends img to the end of its post's gallery, filling in ID and
// Position from the inserted row.
func (im *ImageMapper) Save(ctx context.Context, img *Image) error {
	if img.PostID <= 0 || img.Extension == "" {
		return fmt.Errorf("%w: image needs a post and an extension", mapper.ErrInsufficientData)
	}
	now := im.m.Now()
	locking := im.m.Store().Dialect().Name() == "postgres"
	return im.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		// Concurrent uploads to one post must not read the same MAX(position).
		if locking {
			var id int64
			if err := tx.QueryRow(ctx, "SELECT id FROM posts WHERE id = ? FOR UPDATE", img.PostID).Scan(&id); err != nil {
				return fmt.Errorf("lock post gallery: %w", err)
			}
		}
		const query = `
            INSERT INTO images (post_id, extension, caption, position, created_at, updated_at)
            SELECT ?, ?, ?, COALESCE(MAX(position), 0) + 1, ?, ?
            FROM images WHERE post_id = ?
            RETURNING id, extension, position`
		err := tx.QueryRow(ctx, query, img.PostID, img.Extension, img.Caption, now, now, img.PostID).
			Scan(&img.ID, &img.Extension, &img.Position)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		img.CreatedAt, img.UpdatedAt = now, now
		return nil
	})
}

// Destroy deletes image id of postID and closes the gap it leaves. The
// removed row is returned so the caller can delete its file.
func (im *ImageMapper) Destroy(ctx context.Context, postID, id int64) (*Image, error) {
	var removed Image
	err := im.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		img, err := mapper.Get[Image](ctx, tx, "SELECT * FROM images WHERE id = ? AND post_id = ?", id, postID)
		if err != nil {
			return err
		}
		if err := mapper.ExecAll(ctx, tx, "DELETE FROM images WHERE id = ? AND post_id = ?", []any{id, postID}, 1); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE images SET position = position - 1 WHERE post_id = ? AND position > ?", postID, img.Position); err != nil {
			return fmt.Errorf("reposition images: %w", err)
		}
		removed = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// SetPosition moves an image from oldPos to newPos. Images between the two
// positions shift by one to keep positions dense. oldPos must match the
// stored position and both must lie in 1..count.
func (im *ImageMapper) SetPosition(ctx context.Context, postID, id, oldPos, newPos int64) error {
	if oldPos == newPos {
		return nil
	}
	return im.m.Store().WithTx(ctx, func(tx *store.Tx) error {
		img, err := mapper.Get[Image](ctx, tx, "SELECT * FROM images WHERE id = ? AND post_id = ?", id, postID)
		if err != nil {
			return err
		}
		count, err := mapper.Count(ctx, tx, "SELECT COUNT(1) FROM images WHERE post_id = ?", postID)
		if err != nil {
			return err
		}
		if img.Position != oldPos || oldPos < 1 || newPos < 1 || oldPos > count || newPos > count {
			return fmt.Errorf("%w: move %d->%d with %d image(s), stored at %d", ErrInvalidPosition, oldPos, newPos, count, img.Position)
		}

		var shift string
		if newPos < oldPos {
			shift = "UPDATE images SET position = position + 1 WHERE post_id = ? AND position >= ? AND position < ?"
		} else {
			shift = "UPDATE images SET position = position - 1 WHERE post_id = ? AND position <= ? AND position > ?"
		}
		if _, err := tx.Exec(ctx, shift, postID, newPos, oldPos); err != nil {
			return fmt.Errorf("shift images: %w", err)
		}
		return mapper.ExecAll(ctx, tx, "UPDATE images SET position = ?, updated_at = ? WHERE id = ?", []any{newPos, im.m.Now(), id}, 1)
	})
}

// UpdateCaption replaces the caption of one image.
func (im *ImageMapper) UpdateCaption(ctx context.Context, postID, id int64, caption string) error {
	err := mapper.ExecAll(ctx, im.m.Store(), "UPDATE images SET caption = ?, updated_at = ? WHERE id = ? AND post_id = ?",
		[]any{caption, im.m.Now(), id, postID}, 1)
	if errors.Is(err, mapper.ErrNotFound) {
		return mapper.ErrNotFound
	}
	return err
}
