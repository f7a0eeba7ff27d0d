// Package uploads stores gallery image files on disk.
//
// Files live at <upload_dir>/<post_id>/<image_id>.<ext>. The database row is
// the source of truth: callers insert the row first, write the file with the
// row's id, and remove the file after the row is gone.
package uploads
