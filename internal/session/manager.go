package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lsm/internal/logging"
	"lsm/internal/mapper"
)

// CookieName is the session cookie.
const CookieName = "lsm_session"

type record struct {
	ID        string    `db:"id"`
	UserID    *int64    `db:"user_id"`
	Data      string    `db:"data"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (record) TableName() string    { return "sessions" }
func (record) PrimaryKey() []string { return []string{"id"} }

// Options configures a Manager.
type Options struct {
	TTL    time.Duration
	Secure bool
	Path   string
}

// Manager loads and persists sessions.
type Manager struct {
	m      *mapper.Mapper
	opts   Options
	logger *slog.Logger
}

// NewManager builds a Manager on m.
func NewManager(m *mapper.Mapper, opts Options, logger *slog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &Manager{m: m, opts: opts, logger: logging.NewComponentLogger(logger, "session")}
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is missing, unknown or expired.
func (mg *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return newSession(uuid.NewString()), nil
	}
	if _, perr := uuid.Parse(c.Value); perr != nil {
		return newSession(uuid.NewString()), nil
	}

	var rec record
	err = mg.m.Find(ctx, &rec, c.Value)
	if errors.Is(err, mapper.ErrNotFound) {
		return newSession(uuid.NewString()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !rec.ExpiresAt.After(mg.m.Now()) {
		return newSession(uuid.NewString()), nil
	}

	s := &Session{id: rec.ID, userID: rec.UserID, expiresAt: rec.ExpiresAt, createdAt: rec.CreatedAt}
	s.decode(rec.Data)
	return s, nil
}

// Save persists s, slides its expiry and writes the cookie. It must run
// before the response header is written.
func (mg *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	now := mg.m.Now()
	if s.renewedID != "" {
		if err := mg.m.Destroy(ctx, &record{ID: s.renewedID}); err != nil && !errors.Is(err, mapper.ErrNotFound) {
			return fmt.Errorf("drop renewed session: %w", err)
		}
		s.renewedID = ""
	}
	rec := &record{
		ID:        s.id,
		UserID:    s.userID,
		Data:      s.encode(),
		ExpiresAt: now.Add(mg.opts.TTL),
		CreatedAt: s.createdAt,
		UpdatedAt: now,
	}
	if err := mg.m.Save(ctx, rec, true); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.isNew, s.dirty = false, false
	s.expiresAt = rec.ExpiresAt
	http.SetCookie(w, mg.cookie(s.id, rec.ExpiresAt))
	return nil
}

// Renew swaps the session id, keeping its data. Used on login.
func (mg *Manager) Renew(s *Session) {
	if !s.isNew {
		s.renewedID = s.id
	}
	s.id = uuid.NewString()
	s.dirty = true
}

// Destroy deletes s and expires the cookie.
func (mg *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := mg.m.Destroy(ctx, &record{ID: s.id}); err != nil && !errors.Is(err, mapper.ErrNotFound) {
		return fmt.Errorf("destroy session: %w", err)
	}
	s.destroyed = true
	c := mg.cookie("", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)
	return nil
}

// Purge removes expired sessions and reports how many were deleted.
func (mg *Manager) Purge(ctx context.Context) (int64, error) {
	res, err := mg.m.Store().Exec(ctx, "DELETE FROM sessions WHERE expires_at < ?", mg.m.Now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		mg.logger.Info("purged expired sessions", logging.Int64("count", n))
	}
	return n, nil
}

// DestroyForUser removes every session of a user, e.g. after a password change.
func (mg *Manager) DestroyForUser(ctx context.Context, userID int64) error {
	_, err := mg.m.Store().Exec(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

func (mg *Manager) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     mg.opts.Path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   mg.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
