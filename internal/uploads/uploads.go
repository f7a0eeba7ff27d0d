package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"lsm/internal/config"
	"lsm/internal/fileutil"
	"lsm/internal/logging"
	"lsm/internal/preflight"
)

var (
	// ErrExtensionNotAllowed rejects file names outside the configured list.
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	// ErrTooLarge rejects files above uploads.max_bytes.
	ErrTooLarge = errors.New("file too large")
	// ErrNotImage rejects files whose contents do not match an image format.
	ErrNotImage = errors.New("file is not a valid image")
)

// headerSize is enough for image.DecodeConfig on every registered format.
const headerSize = 512

// Store writes and removes image files under a root directory.
type Store struct {
	root     string
	maxBytes int64
	cfg      *config.Config
	logger   *slog.Logger
}

// New returns a Store rooted at cfg.Paths.UploadDir.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		root:     cfg.Paths.UploadDir,
		maxBytes: cfg.Uploads.MaxBytes,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "uploads"),
	}
}

// Root returns the upload directory.
func (s *Store) Root() string { return s.root }

// MaxBytes returns the per-file size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Preflight checks that the upload directory is usable.
func (s *Store) Preflight() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	if res := preflight.CheckDirectoryAccess("Upload directory", s.root); !res.Passed {
		return errors.New(res.Detail)
	}
	return nil
}

// Inspect validates an upload before anything is persisted. It returns the
// normalized extension. r is rewound to the start on success.
func (s *Store) Inspect(name string, size int64, r io.ReadSeeker) (string, error) {
	raw := strings.TrimPrefix(path.Ext(name), ".")
	if raw == "" || !s.cfg.AllowsExtension(raw) {
		return "", fmt.Errorf("%w: %q (allowed: %s)", ErrExtensionNotAllowed, raw, strings.Join(s.cfg.Uploads.AllowedExtensions, ", "))
	}
	ext := Extension(name)
	if size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, s.maxBytes)
	}

	head := make([]byte, headerSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if !looksLikeImage(ext, head, r) {
		return "", ErrNotImage
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return ext, nil
}

// looksLikeImage decodes the image header. WebP has no registered decoder,
// so its RIFF container signature is checked instead.
func looksLikeImage(ext string, head []byte, r io.Reader) bool {
	if ext == "webp" {
		return len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	cfg, format, err := image.DecodeConfig(r)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return false
	}
	switch ext {
	case "jpg", "jpeg":
		return format == "jpeg"
	default:
		return format == ext
	}
}

// Extension returns the lowercase extension of name without the dot, with
// "jpeg" folded to "jpg".
func Extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// RelPath is the slash-separated path below the upload root, used in URLs.
func RelPath(postID, imageID int64, ext string) string {
	return strconv.FormatInt(postID, 10) + "/" + strconv.FormatInt(imageID, 10) + "." + ext
}

// Path returns the file location for an image.
func (s *Store) Path(postID, imageID int64, ext string) string {
	return filepath.Join(s.root, filepath.FromSlash(RelPath(postID, imageID, ext)))
}

// Write stores r as the file for an image.
func (s *Store) Write(postID, imageID int64, ext string, r io.Reader) (int64, error) {
	dst := s.Path(postID, imageID, ext)
	n, err := fileutil.WriteAtomic(dst, r, s.maxBytes, 0o644)
	if err != nil {
		if errors.Is(err, fileutil.ErrTooLarge) {
			return n, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxBytes)
		}
		return n, fmt.Errorf("write image %s: %w", dst, err)
	}
	s.logger.Debug("image stored",
		logging.String(logging.FieldEventType, "image_stored"),
		logging.String("path", dst),
		logging.Int64("bytes", n))
	return n, nil
}

// Import copies a local file into place, used when seeding fixtures.
func (s *Store) Import(postID, imageID int64, ext, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.Size() > s.maxBytes {
		return fmt.Errorf("%w: %s", ErrTooLarge, src)
	}
	return fileutil.CopyFile(src, s.Path(postID, imageID, ext))
}

// Remove deletes an image file and its post directory once empty. A file
// that is already gone is not an error.
func (s *Store) Remove(postID, imageID int64, ext string) error {
	p := s.Path(postID, imageID, ext)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", p, err)
	}
	return fileutil.RemoveIfEmpty(filepath.Dir(p))
}

// RemovePost deletes every file of a post's gallery.
func (s *Store) RemovePost(postID int64) error {
	dir := filepath.Join(s.root, strconv.FormatInt(postID, 10))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove gallery %s: %w", dir, err)
	}
	return nil
}
