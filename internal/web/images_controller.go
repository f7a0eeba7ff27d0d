package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/content"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/uploads"
	"lsm/internal/validate"
)

// ImagesController manages a post's gallery. Every action needs
// edit_contents except viewing.
type ImagesController struct {
	*Controller
}

type gallery struct {
	Post       *content.Post
	Images     []content.Image
	MaxBytes   int64
	Extensions string
}

const (
	// maxFilesPerUpload bounds the request body together with the per-file
	// limit.
	maxFilesPerUpload = 20
	// multipartOverhead allows for form fields and part headers.
	multipartOverhead = 1 << 20
)

// Index shows the gallery in position order.
func (c *ImagesController) Index(w http.ResponseWriter, r *http.Request, args ...string) error {
	post, err := c.post(r, args[0])
	if err != nil {
		return err
	}
	images, err := c.app.images.Index(r.Context(), post.ID)
	if err != nil {
		return err
	}
	data := gallery{
		Post:       post,
		Images:     images,
		MaxBytes:   c.app.uploads.MaxBytes(),
		Extensions: strings.Join(c.app.cfg.Uploads.AllowedExtensions, ", "),
	}
	return c.Render(w, "images/index", c.NewPage(r, "Gallery: "+post.Title, "posts", data))
}

// Upload appends one or more images to the end of the gallery.
func (c *ImagesController) Upload(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	post, err := c.post(r, args[0])
	if err != nil {
		return err
	}
	back := galleryPath(post.ID)

	r.Body = http.MaxBytesReader(w, r.Body, maxFilesPerUpload*c.app.uploads.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(c.app.uploads.MaxBytes()); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return c.Fail(w, r, "The upload is too large.", back)
		}
		return c.Fail(w, r, "The upload could not be read.", back)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		return c.Fail(w, r, "Choose at least one image.", back)
	}
	if len(headers) > maxFilesPerUpload {
		return c.Fail(w, r, fmt.Sprintf("Upload at most %d images at a time.", maxFilesPerUpload), back)
	}
	caption := strings.TrimSpace(r.PostFormValue("caption"))
	v := validate.New()
	if !v.Check(r.PostForm, content.ImageCaptionRules) {
		return c.Invalid(w, r, v, back)
	}

	var failed []string
	stored := 0
	for _, fh := range headers {
		if err := c.store(r, post.ID, fh, caption); err != nil {
			var userErr *userError
			if !errors.As(err, &userErr) {
				return err
			}
			failed = append(failed, fmt.Sprintf("%s: %s", fh.Filename, userErr.msg))
			continue
		}
		stored++
	}
	if len(failed) > 0 {
		for _, msg := range failed {
			v.Add("images", msg)
		}
		if stored > 0 {
			c.Session(r).Flash(flashSuccess, fmt.Sprintf("%d image(s) uploaded.", stored))
		}
		c.Session(r).Flash(flashError, v.ErrorsJSON())
		return c.Redirect(w, r, back)
	}
	return c.Success(w, r, fmt.Sprintf("%d image(s) uploaded.", stored), back)
}

// store checks one file, inserts its row and writes it to disk. The row is
// removed again when the file cannot be written.
func (c *ImagesController) store(r *http.Request, postID int64, fh *multipart.FileHeader, caption string) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ext, err := c.app.uploads.Inspect(fh.Filename, fh.Size, f)
	switch {
	case errors.Is(err, uploads.ErrExtensionNotAllowed):
		return shown("file type not allowed", err)
	case errors.Is(err, uploads.ErrTooLarge):
		return shown("file too large", err)
	case errors.Is(err, uploads.ErrNotImage):
		return shown("not a valid image", err)
	case err != nil:
		return err
	}

	ctx := r.Context()
	img := &content.Image{PostID: postID, Extension: ext, Caption: caption}
	if err := c.app.images.Save(ctx, img); err != nil {
		return err
	}
	if _, err := c.app.uploads.Write(postID, img.ID, ext, f); err != nil {
		if _, dErr := c.app.images.Destroy(ctx, postID, img.ID); dErr != nil {
			logging.WithContext(ctx, c.app.logger).Error("rollback image row failed",
				logging.Int64("image_id", img.ID), logging.Error(dErr))
		}
		if errors.Is(err, uploads.ErrTooLarge) {
			return shown("file too large", err)
		}
		return err
	}
	logging.WithContext(ctx, c.app.logger).Info("image uploaded",
		logging.String(logging.FieldEventType, "image_uploaded"),
		logging.Int64("post_id", postID),
		logging.Int64("image_id", img.ID),
		logging.Int64("position", img.Position))
	return nil
}

// Destroy removes an image, closes the gap in the positions and deletes the
// file.
func (c *ImagesController) Destroy(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	postID, id, err := imageIDs(args)
	if err != nil {
		return err
	}
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	back := galleryPath(postID)
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", back)
	}
	removed, err := c.app.images.Destroy(r.Context(), postID, id)
	if err != nil {
		if errors.Is(err, mapper.ErrNotFound) {
			return c.Fail(w, r, "The image no longer exists.", back)
		}
		return err
	}
	if err := c.app.uploads.Remove(postID, removed.ID, removed.Extension); err != nil {
		logging.WithContext(r.Context(), c.app.logger).Warn("image file cleanup failed", logging.Error(err))
	}
	return c.Success(w, r, "Image deleted.", back)
}

// Reorder moves an image from position "old" to position "new" and replies
// with the gallery's ids in their new order.
func (c *ImagesController) Reorder(w http.ResponseWriter, r *http.Request, args ...string) error {
	return c.Ajax(w, r, auth.PrivEditContents, "Could not move the image.", func() (Reply, error) {
		postID, id, err := imageIDs(args)
		if err != nil {
			return Reply{}, err
		}
		oldPos, err1 := strconv.ParseInt(r.PostFormValue("old"), 10, 64)
		newPos, err2 := strconv.ParseInt(r.PostFormValue("new"), 10, 64)
		if err1 != nil || err2 != nil {
			return Reply{}, shown("Invalid position.", errors.Join(err1, err2))
		}
		ctx := r.Context()
		if err := c.app.images.SetPosition(ctx, postID, id, oldPos, newPos); err != nil {
			if errors.Is(err, content.ErrInvalidPosition) {
				err = shown("Invalid position. Reload the gallery and try again.", err)
			}
			return Reply{}, err
		}
		images, err := c.app.images.Index(ctx, postID)
		if err != nil {
			return Reply{}, err
		}
		order := make([]int64, len(images))
		for i, img := range images {
			order[i] = img.ID
		}
		return Reply{Items: order, Success: "Image moved."}, nil
	})
}

// Caption replaces an image's caption.
func (c *ImagesController) Caption(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditContents); err != nil {
		return err
	}
	postID, id, err := imageIDs(args)
	if err != nil {
		return err
	}
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := galleryPath(postID)
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", back)
	}
	v := validate.New()
	if !v.Check(form, content.ImageCaptionRules) {
		return c.Invalid(w, r, v, back)
	}
	if err := c.app.images.UpdateCaption(r.Context(), postID, id, strings.TrimSpace(form.Get("caption"))); err != nil {
		return err
	}
	return c.Success(w, r, "Caption saved.", back)
}

func (c *ImagesController) post(r *http.Request, raw string) (*content.Post, error) {
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return c.app.posts.Find(r.Context(), id)
}

func imageIDs(args []string) (postID, id int64, err error) {
	if postID, err = parseID(args[0]); err != nil {
		return 0, 0, err
	}
	if id, err = parseID(args[1]); err != nil {
		return 0, 0, err
	}
	return postID, id, nil
}

func galleryPath(postID int64) string {
	return fmt.Sprintf("posts/%d/images", postID)
}
